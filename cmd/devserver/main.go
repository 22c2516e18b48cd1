// Command devserver runs the development OTP backend serving /user/send-otp and /user/verify-otp.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-login/internal/config"
	"chat-login/internal/devotp"
	"chat-login/internal/devserver"
	"chat-login/internal/logger"
	"chat-login/internal/security"
	"chat-login/internal/sms"
	"chat-login/internal/telemetry"
	"chat-login/internal/telemetry/kafka"
	"chat-login/internal/telemetry/loki"
	telemetryotel "chat-login/internal/telemetry/otel"
)

const serviceName = "chat-login-devserver"

func main() {
	fs := pflag.NewFlagSet("devserver", pflag.ExitOnError)
	fs.String("http-addr", "", "listen address (HTTP_ADDR)")
	fs.String("redis-url", "", "Redis URL for the OTP store (REDIS_URL); empty uses memory")
	fs.Bool("otp-return-to-client", false, "expose GET /dev/otp and skip SMS (OTP_RETURN_TO_CLIENT)")
	fs.String("log-level", "", "log level (LOG_LEVEL)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("devserver", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

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
	if k := kafka.NewEmitter(cfg.KafkaBrokerList(), cfg.KafkaTopic); k != nil {
		defer func() {
			if err := k.Close(); err != nil {
				log.Warn("kafka emitter close", zap.Error(err))
			}
		}()
		emitter = append(emitter, k)
	}

	var store devotp.Store = devotp.NewMemoryStore()
	if cfg.RedisURL != "" {
		rdb, err := devotp.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = devotp.NewRedisStore(rdb, "")
		log.Info("using redis otp store")
	}

	var sender sms.Sender = sms.LogSender{Logger: log}
	if cfg.SMSLocalAPIKey != "" && !cfg.OTPReturnToClient {
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}

	signer, pub, ephemeral, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return err
	}
	if ephemeral {
		log.Warn("JWT_PRIVATE_KEY not set, signing sessions with an ephemeral key")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	metrics, err := devserver.NewMetrics(otel.Meter(devserver.MeterName))
	if err != nil {
		return err
	}

	svc := devserver.NewService(store, sender, security.NewHasher(cfg.OTPHashCost), tokens, devserver.ServiceConfig{
		OTPTTL:        cfg.OTPTTL(),
		SendCooldown:  cfg.OTPSendCooldown(),
		MaxAttempts:   cfg.OTPMaxAttempts,
		KeepPlainCode: cfg.OTPReturnToClient,
	}, log, metrics, emitter)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           devserver.NewRouter(svc, log, devserver.RouterOptions{DevOTP: cfg.OTPReturnToClient}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("dev OTP server listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("dev_otp", cfg.OTPReturnToClient))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	log.Info("shutting down dev OTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("dev OTP server stopped")
	return nil
}
