// Command chatlogin is the terminal login client of the chat app: phone number, then OTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"chat-login/internal/api"
	"chat-login/internal/config"
	"chat-login/internal/logger"
	"chat-login/internal/login"
	"chat-login/internal/telemetry"
	"chat-login/internal/telemetry/loki"
	telemetryotel "chat-login/internal/telemetry/otel"
	"chat-login/internal/terminal"
)

const serviceName = "chat-login"

func main() {
	fs := pflag.NewFlagSet("chatlogin", pflag.ExitOnError)
	fs.String("api-url", "", "OTP backend base URL (API_URL)")
	countryCode := fs.String("country-code", "", "preselected calling code (DEFAULT_COUNTRY_CODE)")
	fs.Bool("resend-via-api", false, "resend OTP through the backend instead of simulating it (RESEND_VIA_API)")
	fs.String("log-level", "", "log level (LOG_LEVEL)")
	theme := fs.String("theme", string(terminal.ThemeDark), "color theme: dark or light")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if fs.Changed("country-code") {
		cfg.DefaultCountryCode = *countryCode
	}
	if err := cfg.ValidateClient(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(log)

	err = run(cfg, log, terminal.Theme(*theme))
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatlogin: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, theme terminal.Theme) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	emitter := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if cfg.LokiURL != "" {
		emitter = append(emitter, loki.NewEmitter(cfg.LokiURL, nil))
	}

	client := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.Timeout()),
		api.WithTracerProvider(providers.TracerProvider),
	)

	ctrl, err := login.New(client, printNavigator(os.Stdout), login.Options{
		CountryCode:    cfg.DefaultCountryCode,
		LandingRoute:   cfg.LandingRoute,
		ResendViaAPI:   cfg.ResendViaAPI,
		ResendDelay:    cfg.ResendDelayDuration(),
		ResendCooldown: cfg.ResendCooldownSeconds(),
		Logger:         log,
		Emitter:        emitter,
		Source:         serviceName,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", err, cfg.DefaultCountryCode)
	}
	defer ctrl.Close()

	log.Debug("login client started", zap.String("api_url", client.BaseURL()), zap.Bool("resend_via_api", cfg.ResendViaAPI))
	screen := terminal.NewScreen(ctrl, os.Stdin, os.Stdout, terminal.WithTheme(theme), terminal.WithLogger(log))
	if err := screen.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// printNavigator hands a verified login off by printing the landing route and the verify payload.
func printNavigator(w io.Writer) login.Navigator {
	return login.NavigatorFunc(func(route string, res *api.VerifyResult) {
		fmt.Fprintf(w, "\nLogged in. Navigating to %s\n", route)
		if res == nil || len(res.Raw) == 0 {
			return
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Raw, "", "  "); err != nil {
			_, _ = w.Write(res.Raw)
			fmt.Fprintln(w)
			return
		}
		buf.WriteByte('\n')
		_, _ = buf.WriteTo(w)
	})
}
