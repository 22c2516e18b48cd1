package login

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-login/internal/api"
	"chat-login/internal/telemetry"
)

// fakeService records calls and answers with the configured results.
type fakeService struct {
	mu          sync.Mutex
	requested   []string
	verified    [][2]string
	requestRes  *api.OTPRequestResult
	requestErr  error
	verifyRes   *api.VerifyResult
	verifyErr   error
	block       chan struct{}
	blockVerify bool
}

func (f *fakeService) RequestOTP(ctx context.Context, phone string) (*api.OTPRequestResult, error) {
	f.mu.Lock()
	f.requested = append(f.requested, phone)
	block := f.block
	f.mu.Unlock()
	if block != nil && !f.blockVerify {
		<-block
	}
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	if f.requestRes == nil {
		return &api.OTPRequestResult{Payload: map[string]any{}}, nil
	}
	return f.requestRes, nil
}

func (f *fakeService) VerifyOTP(ctx context.Context, phone, code string) (*api.VerifyResult, error) {
	f.mu.Lock()
	f.verified = append(f.verified, [2]string{phone, code})
	block := f.block
	f.mu.Unlock()
	if block != nil && f.blockVerify {
		<-block
	}
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyRes == nil {
		return &api.VerifyResult{Payload: map[string]any{}}, nil
	}
	return f.verifyRes, nil
}

func (f *fakeService) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

type navCall struct {
	route  string
	result *api.VerifyResult
}

type recordingNavigator struct {
	mu    sync.Mutex
	calls []navCall
}

func (n *recordingNavigator) Navigate(route string, result *api.VerifyResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, navCall{route, result})
}

func (n *recordingNavigator) Calls() []navCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navCall(nil), n.calls...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev *telemetry.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func testOptions() Options {
	return Options{
		ResendDelay:  10 * time.Millisecond,
		TickInterval: time.Hour,
	}
}

func newController(t *testing.T, svc OTPService, nav Navigator, opts Options) *Controller {
	t.Helper()
	c, err := New(svc, nav, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// newOTPStepController returns a controller already on the OTP step for +919876543210.
func newOTPStepController(t *testing.T, svc *fakeService, nav Navigator, opts Options) *Controller {
	t.Helper()
	c := newController(t, svc, nav, opts)
	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))
	require.Equal(t, StepOTPEntry, c.Snapshot().Step)
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := newController(t, &fakeService{}, nil, Options{})

	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Equal(t, "+91", s.CountryCode)
	assert.Empty(t, s.PhoneNumber)
	assert.Empty(t, s.OTPCode)
	assert.False(t, s.Loading)
	assert.Zero(t, s.CooldownSeconds)
	assert.Empty(t, s.Error)
	assert.False(t, s.CanResend())
}

func TestNew_UnknownCountryCode(t *testing.T) {
	_, err := New(&fakeService{}, nil, Options{CountryCode: "+999"})
	assert.ErrorIs(t, err, ErrUnknownCountryCode)
}

func TestSetCountryCode(t *testing.T) {
	c := newController(t, &fakeService{}, nil, testOptions())

	require.NoError(t, c.SetCountryCode("+44"))
	assert.Equal(t, "+44", c.Snapshot().CountryCode)

	assert.ErrorIs(t, c.SetCountryCode("+7"), ErrUnknownCountryCode)
	assert.Equal(t, "+44", c.Snapshot().CountryCode)
}

func TestSubmitPhone_MovesToOTPStep(t *testing.T) {
	svc := &fakeService{requestRes: &api.OTPRequestResult{Payload: map[string]any{}}}
	c := newController(t, svc, nil, testOptions())
	rec := &stateRecorder{}
	c.Subscribe(rec.record)

	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))

	assert.Equal(t, []string{"+919876543210"}, svc.requests())
	s := c.Snapshot()
	assert.Equal(t, StepOTPEntry, s.Step)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Error)

	states := rec.all()
	require.GreaterOrEqual(t, len(states), 2)
	assert.True(t, states[len(states)-2].Loading, "loading must be set while the call is outstanding")
	assert.False(t, states[len(states)-1].Loading)
}

func TestSubmitPhone_RateLimited(t *testing.T) {
	svc := &fakeService{requestRes: &api.OTPRequestResult{
		WaitTime: json.RawMessage("30"),
		Message:  "Try again in 30s",
	}}
	c := newController(t, svc, nil, testOptions())

	require.NoError(t, c.SetCountryCode("+1"))
	c.SetPhoneNumber("5550001")
	require.NoError(t, c.SubmitPhone(context.Background()))

	assert.Equal(t, []string{"+15550001"}, svc.requests())
	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Equal(t, "Try again in 30s", s.Error)
	assert.False(t, s.Loading)
}

func TestSubmitPhone_RateLimitedWithoutMessage(t *testing.T) {
	svc := &fakeService{requestRes: &api.OTPRequestResult{WaitTime: json.RawMessage(`"soon"`)}}
	c := newController(t, svc, nil, testOptions())

	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Equal(t, MsgRateLimited, s.Error)
}

func TestSubmitPhone_FalsyWaitTimeIsNotRateLimit(t *testing.T) {
	for _, raw := range []string{"0", `""`, "false", "null"} {
		t.Run(raw, func(t *testing.T) {
			svc := &fakeService{requestRes: &api.OTPRequestResult{WaitTime: json.RawMessage(raw), Message: "ignored"}}
			c := newController(t, svc, nil, testOptions())

			c.SetPhoneNumber("9876543210")
			require.NoError(t, c.SubmitPhone(context.Background()))

			s := c.Snapshot()
			assert.Equal(t, StepOTPEntry, s.Step)
			assert.Empty(t, s.Error)
		})
	}
}

func TestSubmitPhone_FailureIsVisible(t *testing.T) {
	svc := &fakeService{requestErr: &api.StatusError{Op: "send-otp", StatusCode: 500, Err: api.ErrLoginFailed}}
	c := newController(t, svc, nil, testOptions())

	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Equal(t, MsgSendFailed, s.Error)
	assert.False(t, s.Loading)
}

func TestSubmitPhone_ClearsPreviousError(t *testing.T) {
	svc := &fakeService{requestErr: errors.New("boom")}
	c := newController(t, svc, nil, testOptions())

	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))
	require.Equal(t, MsgSendFailed, c.Snapshot().Error)

	svc.mu.Lock()
	svc.requestErr = nil
	svc.mu.Unlock()
	require.NoError(t, c.SubmitPhone(context.Background()))
	assert.Empty(t, c.Snapshot().Error)
	assert.Equal(t, StepOTPEntry, c.Snapshot().Step)
}

func TestSubmitPhone_Preconditions(t *testing.T) {
	svc := &fakeService{}
	c := newController(t, svc, nil, testOptions())

	assert.ErrorIs(t, c.SubmitPhone(context.Background()), ErrPhoneRequired)
	assert.Empty(t, svc.requests())

	c.SetPhoneNumber("9876543210")
	require.NoError(t, c.SubmitPhone(context.Background()))
	assert.ErrorIs(t, c.SubmitPhone(context.Background()), ErrWrongStep)
}

func TestSubmitPhone_BusyWhileLoading(t *testing.T) {
	svc := &fakeService{block: make(chan struct{})}
	c := newController(t, svc, nil, testOptions())
	c.SetPhoneNumber("9876543210")

	errc := make(chan error, 1)
	go func() { errc <- c.SubmitPhone(context.Background()) }()
	require.Eventually(t, func() bool { return c.Snapshot().Loading }, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.SubmitPhone(context.Background()), ErrBusy)
	assert.False(t, c.Snapshot().CanSubmit())

	close(svc.block)
	require.NoError(t, <-errc)
	assert.Len(t, svc.requests(), 1)
}

func TestSubmitPhone_ResultDroppedAfterClose(t *testing.T) {
	svc := &fakeService{block: make(chan struct{})}
	c := newController(t, svc, nil, testOptions())
	c.SetPhoneNumber("9876543210")

	errc := make(chan error, 1)
	go func() { errc <- c.SubmitPhone(context.Background()) }()
	require.Eventually(t, func() bool { return c.Snapshot().Loading }, time.Second, time.Millisecond)

	c.Close()
	close(svc.block)

	assert.ErrorIs(t, <-errc, ErrClosed)
	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.True(t, s.Closed)
	assert.False(t, s.Loading)
}

func TestSubmitOTP_IncorrectCode(t *testing.T) {
	svc := &fakeService{verifyErr: &api.StatusError{Op: "verify-otp", StatusCode: 401, Err: api.ErrVerificationFailed}}
	nav := &recordingNavigator{}
	c := newOTPStepController(t, svc, nav, testOptions())

	c.SetOTP("000000")
	require.NoError(t, c.SubmitOTP(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, StepOTPEntry, s.Step)
	assert.Equal(t, MsgIncorrectOTP, s.Error)
	assert.False(t, s.Loading)
	assert.Empty(t, nav.Calls())
}

func TestSubmitOTP_TransportErrorCollapsesToIncorrect(t *testing.T) {
	svc := &fakeService{verifyErr: errors.New("connection refused")}
	c := newOTPStepController(t, svc, nil, testOptions())

	c.SetOTP("123456")
	require.NoError(t, c.SubmitOTP(context.Background()))
	assert.Equal(t, MsgIncorrectOTP, c.Snapshot().Error)
}

func TestSubmitOTP_SuccessNavigatesOnce(t *testing.T) {
	result := &api.VerifyResult{Payload: map[string]any{"token": "abc"}}
	svc := &fakeService{verifyRes: result}
	nav := &recordingNavigator{}
	c := newOTPStepController(t, svc, nav, testOptions())

	c.SetOTP("123456")
	require.NoError(t, c.SubmitOTP(context.Background()))

	calls := nav.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/home", calls[0].route)
	assert.Same(t, result, calls[0].result)
	assert.Equal(t, [][2]string{{"+919876543210", "123456"}}, svc.verified)

	s := c.Snapshot()
	assert.True(t, s.Closed)
	assert.False(t, s.Loading)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after a verified login")
	}

	assert.ErrorIs(t, c.SubmitOTP(context.Background()), ErrClosed)
	assert.Len(t, nav.Calls(), 1)
}

func TestSubmitOTP_CustomLandingRoute(t *testing.T) {
	nav := &recordingNavigator{}
	opts := testOptions()
	opts.LandingRoute = "/chats"
	c := newOTPStepController(t, &fakeService{}, nav, opts)

	c.SetOTP("123456")
	require.NoError(t, c.SubmitOTP(context.Background()))
	require.Len(t, nav.Calls(), 1)
	assert.Equal(t, "/chats", nav.Calls()[0].route)
}

func TestSubmitOTP_Preconditions(t *testing.T) {
	c := newController(t, &fakeService{}, nil, testOptions())
	assert.ErrorIs(t, c.SubmitOTP(context.Background()), ErrWrongStep)

	c = newOTPStepController(t, &fakeService{}, nil, testOptions())
	assert.ErrorIs(t, c.SubmitOTP(context.Background()), ErrOTPRequired)
}

func TestResendOTP_Simulated(t *testing.T) {
	svc := &fakeService{}
	c := newOTPStepController(t, svc, nil, testOptions())
	rec := &stateRecorder{}
	c.Subscribe(rec.record)

	require.True(t, c.Snapshot().CanResend())
	require.NoError(t, c.ResendOTP(context.Background()))

	states := rec.all()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.Zero(t, states[0].CooldownSeconds)
	assert.False(t, states[1].Loading)
	assert.Equal(t, 30, states[1].CooldownSeconds)
	assert.False(t, c.Snapshot().CanResend())
	assert.Len(t, svc.requests(), 1, "simulated resend must not call the backend")
}

func TestResendOTP_CooldownActive(t *testing.T) {
	c := newOTPStepController(t, &fakeService{}, nil, testOptions())
	require.NoError(t, c.ResendOTP(context.Background()))

	assert.ErrorIs(t, c.ResendOTP(context.Background()), ErrCooldownActive)
}

func TestResendOTP_WrongStep(t *testing.T) {
	c := newController(t, &fakeService{}, nil, testOptions())
	assert.ErrorIs(t, c.ResendOTP(context.Background()), ErrWrongStep)
}

func TestResendOTP_ContextCancelled(t *testing.T) {
	opts := testOptions()
	opts.ResendDelay = time.Hour
	c := newOTPStepController(t, &fakeService{}, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.ResendOTP(ctx) }()
	require.Eventually(t, func() bool { return c.Snapshot().Loading }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	s := c.Snapshot()
	assert.False(t, s.Loading)
	assert.Zero(t, s.CooldownSeconds)
	assert.True(t, s.CanResend())
}

func TestResendOTP_CloseCancelsPendingResend(t *testing.T) {
	opts := testOptions()
	opts.ResendDelay = time.Hour
	c := newOTPStepController(t, &fakeService{}, nil, opts)

	errc := make(chan error, 1)
	go func() { errc <- c.ResendOTP(context.Background()) }()
	require.Eventually(t, func() bool { return c.Snapshot().Loading }, time.Second, time.Millisecond)

	c.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("ResendOTP did not return after Close")
	}
	assert.Zero(t, c.Snapshot().CooldownSeconds)
}

func TestResendOTP_ViaAPI(t *testing.T) {
	t.Run("success starts cooldown", func(t *testing.T) {
		svc := &fakeService{}
		opts := testOptions()
		opts.ResendViaAPI = true
		c := newOTPStepController(t, svc, nil, opts)

		require.NoError(t, c.ResendOTP(context.Background()))
		assert.Equal(t, []string{"+919876543210", "+919876543210"}, svc.requests())
		s := c.Snapshot()
		assert.Equal(t, 30, s.CooldownSeconds)
		assert.Empty(t, s.Error)
		assert.False(t, s.Loading)
	})

	t.Run("rate limited uses backend wait time", func(t *testing.T) {
		svc := &fakeService{}
		opts := testOptions()
		opts.ResendViaAPI = true
		c := newOTPStepController(t, svc, nil, opts)

		svc.mu.Lock()
		svc.requestRes = &api.OTPRequestResult{WaitTime: json.RawMessage("12"), Message: "Try again in 12s"}
		svc.mu.Unlock()
		require.NoError(t, c.ResendOTP(context.Background()))

		s := c.Snapshot()
		assert.Equal(t, "Try again in 12s", s.Error)
		assert.Equal(t, 12, s.CooldownSeconds)
		assert.Equal(t, StepOTPEntry, s.Step)
	})

	t.Run("rate limited without numeric wait time", func(t *testing.T) {
		svc := &fakeService{}
		opts := testOptions()
		opts.ResendViaAPI = true
		c := newOTPStepController(t, svc, nil, opts)

		svc.mu.Lock()
		svc.requestRes = &api.OTPRequestResult{WaitTime: json.RawMessage("true"), Message: "Slow down"}
		svc.mu.Unlock()
		require.NoError(t, c.ResendOTP(context.Background()))

		s := c.Snapshot()
		assert.Equal(t, "Slow down", s.Error)
		assert.Zero(t, s.CooldownSeconds)
	})

	t.Run("failure shows error without cooldown", func(t *testing.T) {
		svc := &fakeService{}
		opts := testOptions()
		opts.ResendViaAPI = true
		c := newOTPStepController(t, svc, nil, opts)

		svc.mu.Lock()
		svc.requestErr = api.ErrLoginFailed
		svc.mu.Unlock()
		require.NoError(t, c.ResendOTP(context.Background()))

		s := c.Snapshot()
		assert.Equal(t, MsgSendFailed, s.Error)
		assert.Zero(t, s.CooldownSeconds)
		assert.True(t, s.CanResend())
	})
}

func TestCooldown_TicksDownToZero(t *testing.T) {
	opts := testOptions()
	opts.ResendCooldown = 3
	opts.TickInterval = 5 * time.Millisecond
	c := newOTPStepController(t, &fakeService{}, nil, opts)
	rec := &stateRecorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.ResendOTP(context.Background()))
	require.Eventually(t, func() bool { return c.Snapshot().CanResend() }, time.Second, time.Millisecond)

	var seen []int
	for _, s := range rec.all() {
		if len(seen) == 0 || seen[len(seen)-1] != s.CooldownSeconds {
			seen = append(seen, s.CooldownSeconds)
		}
	}
	assert.Equal(t, []int{0, 3, 2, 1, 0}, seen)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.Snapshot().CooldownSeconds, "cooldown never goes negative")
}

func TestCooldown_StopsOnClose(t *testing.T) {
	opts := testOptions()
	opts.TickInterval = 5 * time.Millisecond
	c := newOTPStepController(t, &fakeService{}, nil, opts)

	require.NoError(t, c.ResendOTP(context.Background()))
	c.Close()
	frozen := c.Snapshot().CooldownSeconds

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, c.Snapshot().CooldownSeconds)
}

func TestChangePhoneNumber(t *testing.T) {
	svc := &fakeService{verifyErr: api.ErrVerificationFailed}
	c := newOTPStepController(t, svc, nil, testOptions())
	c.SetOTP("111111")
	require.NoError(t, c.SubmitOTP(context.Background()))
	require.Equal(t, MsgIncorrectOTP, c.Snapshot().Error)

	require.NoError(t, c.ChangePhoneNumber())

	s := c.Snapshot()
	assert.Equal(t, StepPhoneEntry, s.Step)
	assert.Empty(t, s.OTPCode)
	assert.Empty(t, s.Error)
	assert.Equal(t, "9876543210", s.PhoneNumber)
	assert.Equal(t, "+91", s.CountryCode)

	assert.ErrorIs(t, c.ChangePhoneNumber(), ErrWrongStep)
}

func TestChangePhoneNumber_KeepsCooldown(t *testing.T) {
	c := newOTPStepController(t, &fakeService{}, nil, testOptions())
	require.NoError(t, c.ResendOTP(context.Background()))

	require.NoError(t, c.ChangePhoneNumber())
	assert.Equal(t, 30, c.Snapshot().CooldownSeconds)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := newController(t, &fakeService{}, nil, testOptions())
	rec := &stateRecorder{}
	unsubscribe := c.Subscribe(rec.record)

	c.SetPhoneNumber("1")
	unsubscribe()
	c.SetPhoneNumber("12")

	states := rec.all()
	require.Len(t, states, 1)
	assert.Equal(t, "1", states[0].PhoneNumber)
}

func TestClose_Idempotent(t *testing.T) {
	c := newController(t, &fakeService{}, nil, testOptions())
	c.Close()
	c.Close()

	assert.True(t, c.Snapshot().Closed)
	assert.ErrorIs(t, c.SetCountryCode("+44"), ErrClosed)
	assert.ErrorIs(t, c.SubmitPhone(context.Background()), ErrClosed)
}

func TestEvents_Emitted(t *testing.T) {
	emitter := &recordingEmitter{}
	opts := testOptions()
	opts.Emitter = emitter
	opts.Source = "test"
	c := newOTPStepController(t, &fakeService{}, nil, opts)

	c.SetOTP("123456")
	require.NoError(t, c.SubmitOTP(context.Background()))

	require.Eventually(t, func() bool { return len(emitter.types()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{telemetry.EventOTPRequested, telemetry.EventOTPVerified}, emitter.types())

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	for _, ev := range emitter.events {
		assert.Equal(t, "test", ev.Source)
		assert.Equal(t, "+********3210", ev.Phone)
	}
}
