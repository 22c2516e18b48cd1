package login

// Step is the active step of the login flow.
type Step string

const (
	// StepPhoneEntry collects the country code and phone number.
	StepPhoneEntry Step = "phone"
	// StepOTPEntry collects the one-time password.
	StepOTPEntry Step = "otp"
)

// User-visible error messages.
const (
	MsgIncorrectOTP = "Incorrect OTP. Please try again."
	MsgSendFailed   = "Failed to send OTP. Please try again."
	// MsgRateLimited is shown when the backend signals a wait time without a message.
	MsgRateLimited = "Too many OTP requests. Please wait and try again."
)

// State is a snapshot of the login flow.
type State struct {
	Step            Step
	CountryCode     string
	PhoneNumber     string
	OTPCode         string
	Loading         bool
	CooldownSeconds int
	Error           string
	// Closed is set once the flow is torn down (verified or closed).
	Closed bool
}

// FullPhoneNumber is the selected calling code followed by the raw digits, unnormalized.
func (s State) FullPhoneNumber() string {
	return s.CountryCode + s.PhoneNumber
}

// CanResend reports whether the resend control is enabled.
func (s State) CanResend() bool {
	return !s.Closed && s.Step == StepOTPEntry && s.CooldownSeconds == 0 && !s.Loading
}

// CanSubmit reports whether the current step's submit control is enabled.
func (s State) CanSubmit() bool {
	return !s.Closed && !s.Loading
}
