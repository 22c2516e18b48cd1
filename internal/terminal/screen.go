// Package terminal renders the login flow on a text terminal and maps input lines to flow actions.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"chat-login/internal/login"
)

// Flow is the part of *login.Controller the screen drives.
type Flow interface {
	Snapshot() login.State
	Subscribe(fn func(login.State)) (unsubscribe func())
	SetCountryCode(code string) error
	SetPhoneNumber(phone string)
	SetOTP(code string)
	SubmitPhone(ctx context.Context) error
	SubmitOTP(ctx context.Context) error
	ResendOTP(ctx context.Context) error
	ChangePhoneNumber() error
	Done() <-chan struct{}
}

// Screen is an interactive line-oriented login screen.
type Screen struct {
	flow  Flow
	in    io.Reader
	out   io.Writer
	color bool
	log   *zap.Logger

	mu           sync.Mutex
	theme        Theme
	loadingLabel string
	prev         login.State
}

// Option configures a Screen.
type Option func(*Screen)

// WithTheme sets the initial theme (default dark).
func WithTheme(t Theme) Option {
	return func(s *Screen) { s.theme = t }
}

// WithColor forces ANSI styling on or off. By default it is on when out is a terminal.
func WithColor(on bool) Option {
	return func(s *Screen) { s.color = on }
}

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) { s.log = l }
}

// NewScreen returns a screen reading commands from in and drawing to out.
func NewScreen(flow Flow, in io.Reader, out io.Writer, opts ...Option) *Screen {
	s := &Screen{
		flow:  flow,
		in:    in,
		out:   out,
		color: isTerminal(out),
		log:   zap.NewNop(),
		theme: ThemeDark,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prev = flow.Snapshot()
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Theme returns the current theme.
func (s *Screen) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// ToggleTheme switches between dark and light and returns the new theme.
func (s *Screen) ToggleTheme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = s.theme.Toggle()
	return s.theme
}

// Run draws the screen and handles input lines until the login completes, the user quits,
// input ends or ctx is done. Completion and quitting return nil.
func (s *Screen) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	unsubscribe := s.flow.Subscribe(s.watch)
	defer unsubscribe()

	if err := s.render(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.flow.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if s.handle(ctx, line) {
				return nil
			}
			select {
			case <-s.flow.Done():
				return nil
			default:
			}
			if err := s.render(); err != nil {
				return err
			}
		}
	}
}

// handle applies one input line. It reports whether the user asked to quit.
func (s *Screen) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	st := s.flow.Snapshot()

	if cmd, ok := strings.CutPrefix(line, ":"); ok {
		fields := strings.Fields(cmd)
		name := ""
		if len(fields) > 0 {
			name = strings.ToLower(fields[0])
		}
		switch name {
		case "quit", "q":
			return true
		case "theme":
			t := s.ToggleTheme()
			s.log.Debug("theme toggled", zap.String("theme", string(t)))
		case "country":
			if len(fields) < 2 {
				s.notice("usage: :country <code>")
				return false
			}
			if err := s.flow.SetCountryCode(fields[1]); err != nil {
				s.notice(fmt.Sprintf("Unknown country code %s.", fields[1]))
			}
		case "resend":
			s.setLoadingLabel(TextSendingOTP)
			s.report(st, s.flow.ResendOTP(ctx))
		case "change":
			s.report(st, s.flow.ChangePhoneNumber())
		default:
			s.notice(fmt.Sprintf("Unknown command :%s.", name))
		}
		return false
	}

	if st.Step == login.StepOTPEntry {
		s.flow.SetOTP(line)
		s.setLoadingLabel(TextVerifying)
		s.report(st, s.flow.SubmitOTP(ctx))
		return false
	}
	s.flow.SetPhoneNumber(line)
	s.setLoadingLabel(TextSendingOTP)
	s.report(st, s.flow.SubmitPhone(ctx))
	return false
}

func (s *Screen) report(st login.State, err error) {
	switch {
	case err == nil, errors.Is(err, login.ErrClosed):
	case errors.Is(err, login.ErrPhoneRequired):
		s.notice("Phone number is required.")
	case errors.Is(err, login.ErrOTPRequired):
		s.notice("OTP is required.")
	case errors.Is(err, login.ErrCooldownActive):
		s.notice(ResendLabel(st) + ".")
	case errors.Is(err, login.ErrBusy):
		s.notice("Please wait for the current request to finish.")
	case errors.Is(err, login.ErrWrongStep):
		s.notice("Not available on this step.")
	default:
		s.log.Debug("action failed", zap.Error(err))
	}
}

// watch prints transient progress between frames.
func (s *Screen) watch(st login.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.prev
	s.prev = st
	pt := painter{p: s.theme.Palette(), color: s.color}
	switch {
	case st.Loading && !prev.Loading && s.loadingLabel != "":
		fmt.Fprintln(s.out, pt.paint(pt.p.Muted, s.loadingLabel))
	case st.Step == login.StepOTPEntry && !st.Closed && prev.CooldownSeconds > 0 && st.CooldownSeconds == 0:
		fmt.Fprintln(s.out, pt.paint(pt.p.Accent, TextResendOTP+" available (:resend)"))
	}
}

func (s *Screen) setLoadingLabel(label string) {
	s.mu.Lock()
	s.loadingLabel = label
	s.mu.Unlock()
}

func (s *Screen) notice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt := painter{p: s.theme.Palette(), color: s.color}
	fmt.Fprintln(s.out, pt.paint(pt.p.Muted, msg))
}

func (s *Screen) render() error {
	st := s.flow.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.out, "\n"); err != nil {
		return err
	}
	return Render(s.out, st, s.theme, s.color)
}
