// Package login drives the two-step phone + OTP login flow.
package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-login/internal/api"
	"chat-login/internal/telemetry"
)

var (
	// ErrBusy is returned when a call for the current step is still outstanding.
	ErrBusy = errors.New("login: request in progress")
	// ErrWrongStep is returned when an operation is not available on the active step.
	ErrWrongStep = errors.New("login: not available on this step")
	// ErrPhoneRequired is returned when submitting an empty phone number.
	ErrPhoneRequired = errors.New("login: phone number is required")
	// ErrOTPRequired is returned when submitting an empty code.
	ErrOTPRequired = errors.New("login: OTP is required")
	// ErrCooldownActive is returned when resending before the cooldown reached zero.
	ErrCooldownActive = errors.New("login: resend cooldown active")
	// ErrClosed is returned once the controller has been closed or the login completed.
	ErrClosed = errors.New("login: closed")
	// ErrUnknownCountryCode is returned for calling codes outside Countries.
	ErrUnknownCountryCode = errors.New("login: unknown country code")
)

const (
	defaultLandingRoute   = "/home"
	defaultResendDelay    = 1500 * time.Millisecond
	defaultResendCooldown = 30
	defaultTickInterval   = time.Second
	defaultSource         = "chatlogin"
)

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	// CountryCode is the initially selected calling code (default +91).
	CountryCode string
	// LandingRoute is passed to the navigator on success (default /home).
	LandingRoute string
	// ResendViaAPI makes ResendOTP call RequestOTP instead of simulating success.
	ResendViaAPI bool
	// ResendDelay is the simulated resend latency (default 1.5s).
	ResendDelay time.Duration
	// ResendCooldown is the cooldown in ticks started after a resend (default 30).
	ResendCooldown int
	// TickInterval is the cooldown decrement period (default 1s).
	TickInterval time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Emitter receives login events; nil disables them.
	Emitter telemetry.EventEmitter
	// Source labels emitted events (default "chatlogin").
	Source string
}

func (o *Options) setDefaults() {
	if o.CountryCode == "" {
		o.CountryCode = DefaultCountryCode
	}
	if o.LandingRoute == "" {
		o.LandingRoute = defaultLandingRoute
	}
	if o.ResendDelay <= 0 {
		o.ResendDelay = defaultResendDelay
	}
	if o.ResendCooldown <= 0 {
		o.ResendCooldown = defaultResendCooldown
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Source == "" {
		o.Source = defaultSource
	}
}

// Controller owns the login flow state. All mutations are serialized; subscribers are
// notified outside the state lock, in mutation order.
//
// Submit and resend calls block until the backend answers. They return nil once the call
// completed, whatever its outcome: failures are reported through State.Error. A non-nil
// error means the call was not made (precondition) or its result was dropped (ErrClosed).
type Controller struct {
	svc  OTPService
	nav  Navigator
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	closed      bool
	done        chan struct{}
	cooldown    *task
	cooldownGen uint64
	resend      *task
	resendGen   uint64
	subs        map[int]func(State)
	nextSub     int

	notifyMu sync.Mutex
}

// New returns a Controller on the phone step with the configured country code.
func New(svc OTPService, nav Navigator, opts Options) (*Controller, error) {
	opts.setDefaults()
	if _, ok := LookupCountry(opts.CountryCode); !ok {
		return nil, ErrUnknownCountryCode
	}
	return &Controller{
		svc:  svc,
		nav:  nav,
		opts: opts,
		log:  opts.Logger,
		state: State{
			Step:        StepPhoneEntry,
			CountryCode: opts.CountryCode,
		},
		done: make(chan struct{}),
		subs: make(map[int]func(State)),
	}, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the controller is closed, including after a verified login.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Subscribe registers fn to receive every state change. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SetCountryCode selects a calling code from Countries.
func (c *Controller) SetCountryCode(code string) error {
	if _, ok := LookupCountry(code); !ok {
		return ErrUnknownCountryCode
	}
	return c.update(func(s *State) { s.CountryCode = code })
}

// SetPhoneNumber stores the raw phone input.
func (c *Controller) SetPhoneNumber(phone string) {
	_ = c.update(func(s *State) { s.PhoneNumber = phone })
}

// SetOTP stores the raw code input.
func (c *Controller) SetOTP(code string) {
	_ = c.update(func(s *State) { s.OTPCode = code })
}

// SubmitPhone requests a code for the full phone number. A rate-limited answer keeps the
// phone step and shows the backend message; any other answer moves to the OTP step.
func (c *Controller) SubmitPhone(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StepPhoneEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.PhoneNumber == "" {
		c.mu.Unlock()
		return ErrPhoneRequired
	}
	c.state.Loading = true
	c.state.Error = ""
	phone := c.state.FullPhoneNumber()
	c.mu.Unlock()
	c.notify()

	res, err := c.svc.RequestOTP(ctx, phone)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Loading = false
	var event string
	switch {
	case err != nil:
		c.state.Error = MsgSendFailed
		event = telemetry.EventOTPRequestFailed
		c.log.Warn("send otp failed", zap.String("phone", telemetry.MaskPhone(phone)), zap.Error(err))
	case res.RateLimited():
		c.state.Error = rateLimitMessage(res)
		event = telemetry.EventOTPRateLimited
		c.log.Info("send otp rate limited", zap.String("phone", telemetry.MaskPhone(phone)), zap.String("msg", res.Message))
	default:
		c.state.Step = StepOTPEntry
		event = telemetry.EventOTPRequested
		c.log.Info("otp requested", zap.String("phone", telemetry.MaskPhone(phone)))
	}
	c.mu.Unlock()
	c.notify()
	c.emit(ctx, event, phone, StepPhoneEntry, nil)
	return nil
}

// SubmitOTP verifies the entered code. On success the controller closes and the navigator
// is called exactly once with the landing route; on failure the fixed incorrect-OTP message is shown.
func (c *Controller) SubmitOTP(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StepOTPEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.OTPCode == "" {
		c.mu.Unlock()
		return ErrOTPRequired
	}
	c.state.Loading = true
	c.state.Error = ""
	phone, code := c.state.FullPhoneNumber(), c.state.OTPCode
	c.mu.Unlock()
	c.notify()

	res, err := c.svc.VerifyOTP(ctx, phone, code)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Loading = false
	if err != nil {
		c.state.Error = MsgIncorrectOTP
		c.mu.Unlock()
		c.log.Info("otp verification failed", zap.String("phone", telemetry.MaskPhone(phone)), zap.Error(err))
		c.notify()
		c.emit(ctx, telemetry.EventOTPVerifyFailed, phone, StepOTPEntry, nil)
		return nil
	}
	c.closeLocked()
	c.mu.Unlock()
	c.notify()

	c.log.Info("otp verified", zap.String("phone", telemetry.MaskPhone(phone)), zap.String("route", c.opts.LandingRoute))
	c.emit(ctx, telemetry.EventOTPVerified, phone, StepOTPEntry, map[string]string{"route": c.opts.LandingRoute})
	if c.nav != nil {
		c.nav.Navigate(c.opts.LandingRoute, res)
	}
	return nil
}

// ResendOTP re-requests a code from the OTP step once the cooldown reached zero.
// By default it simulates success: after ResendDelay loading clears and the cooldown starts.
// With ResendViaAPI it calls RequestOTP; a rate-limited answer shows the backend message and
// starts the cooldown at the backend wait time when it is numeric.
func (c *Controller) ResendOTP(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StepOTPEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.CooldownSeconds > 0 {
		c.mu.Unlock()
		return ErrCooldownActive
	}
	c.state.Loading = true
	c.state.Error = ""
	phone := c.state.FullPhoneNumber()
	if c.opts.ResendViaAPI {
		c.mu.Unlock()
		c.notify()
		return c.resendViaAPI(ctx, phone)
	}

	c.resendGen++
	gen := c.resendGen
	finished := make(chan struct{})
	t := after(c.opts.ResendDelay, func() {
		c.finishSimulatedResend(ctx, gen, phone)
		close(finished)
	})
	c.resend = t
	c.mu.Unlock()
	c.notify()

	select {
	case <-finished:
		return nil
	case <-t.Done():
		<-c.done
		return ErrClosed
	case <-ctx.Done():
		switch c.abortResend(gen) {
		case abortCancelled:
			return ctx.Err()
		case abortClosed:
			return ErrClosed
		}
		<-finished
		return nil
	}
}

func (c *Controller) finishSimulatedResend(ctx context.Context, gen uint64, phone string) {
	c.mu.Lock()
	if c.closed || gen != c.resendGen {
		c.mu.Unlock()
		return
	}
	c.resend = nil
	c.resendGen++
	c.state.Loading = false
	c.startCooldownLocked(c.opts.ResendCooldown)
	c.mu.Unlock()
	c.notify()
	c.emit(ctx, telemetry.EventOTPResent, phone, StepOTPEntry, map[string]string{"mode": "simulated"})
}

type abortResult int

const (
	abortCancelled abortResult = iota
	abortClosed
	abortTooLate
)

// abortResend cancels the pending simulated resend gen unless it already completed.
func (c *Controller) abortResend(gen uint64) abortResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return abortClosed
	}
	if gen != c.resendGen {
		c.mu.Unlock()
		return abortTooLate
	}
	c.resend.Cancel()
	c.resend = nil
	c.resendGen++
	c.state.Loading = false
	c.mu.Unlock()
	c.notify()
	return abortCancelled
}

func (c *Controller) resendViaAPI(ctx context.Context, phone string) error {
	res, err := c.svc.RequestOTP(ctx, phone)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Loading = false
	event := telemetry.EventOTPResent
	switch {
	case err != nil:
		c.state.Error = MsgSendFailed
		event = telemetry.EventOTPRequestFailed
		c.log.Warn("resend otp failed", zap.String("phone", telemetry.MaskPhone(phone)), zap.Error(err))
	case res.RateLimited():
		c.state.Error = rateLimitMessage(res)
		event = telemetry.EventOTPRateLimited
		if n, ok := res.WaitSeconds(); ok {
			c.startCooldownLocked(n)
		}
	default:
		c.startCooldownLocked(c.opts.ResendCooldown)
	}
	c.mu.Unlock()
	c.notify()
	c.emit(ctx, event, phone, StepOTPEntry, map[string]string{"mode": "api"})
	return nil
}

// ChangePhoneNumber returns to the phone step, clearing the code and error.
// Phone number, country code and any running cooldown are kept.
func (c *Controller) ChangePhoneNumber() error {
	return c.updateChecked(StepOTPEntry, func(s *State) {
		s.Step = StepPhoneEntry
		s.OTPCode = ""
		s.Error = ""
	})
}

// Close tears the controller down: the cooldown and any pending simulated resend are
// cancelled and results of calls still in flight are dropped. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closeLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) closeLocked() {
	c.closed = true
	c.state.Closed = true
	c.state.Loading = false
	c.cooldown.Cancel()
	c.cooldown = nil
	c.resend.Cancel()
	c.resend = nil
	close(c.done)
}

// startCooldownLocked replaces any running cooldown with one starting at seconds.
func (c *Controller) startCooldownLocked(seconds int) {
	c.cooldown.Cancel()
	c.cooldown = nil
	c.cooldownGen++
	c.state.CooldownSeconds = max(seconds, 0)
	if c.state.CooldownSeconds == 0 {
		return
	}
	gen := c.cooldownGen
	c.cooldown = every(c.opts.TickInterval, func() bool { return c.tick(gen) })
}

// tick decrements the cooldown by one. It reports whether ticking should continue.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	if c.closed || gen != c.cooldownGen {
		c.mu.Unlock()
		return false
	}
	if c.state.CooldownSeconds > 0 {
		c.state.CooldownSeconds--
	}
	more := c.state.CooldownSeconds > 0
	if !more {
		c.cooldown = nil
	}
	c.mu.Unlock()
	c.notify()
	return more
}

func (c *Controller) checkLocked(step Step) error {
	if c.closed {
		return ErrClosed
	}
	if c.state.Step != step {
		return ErrWrongStep
	}
	if c.state.Loading {
		return ErrBusy
	}
	return nil
}

func (c *Controller) update(fn func(*State)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) updateChecked(step Step, fn func(*State)) error {
	c.mu.Lock()
	if err := c.checkLocked(step); err != nil {
		c.mu.Unlock()
		return err
	}
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
	return nil
}

// notify delivers the latest state to every subscriber. notifyMu keeps deliveries ordered.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	s := c.state
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Controller) emit(ctx context.Context, eventType, phone string, step Step, meta map[string]string) {
	if c.opts.Emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, c.opts.Source)
	ev.Phone = telemetry.MaskPhone(phone)
	ev.Step = string(step)
	ev.Metadata = meta
	telemetry.EmitAsync(c.opts.Emitter, ctx, ev)
}

func rateLimitMessage(res *api.OTPRequestResult) string {
	if res.Message != "" {
		return res.Message
	}
	return MsgRateLimited
}
