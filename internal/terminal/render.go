package terminal

import (
	"fmt"
	"io"
	"strings"

	"chat-login/internal/login"
)

// Texts shown on the screen.
const (
	TextTitle          = "Chat App Login"
	TextPhoneStep      = "Enter your phone number to receive a one-time password."
	TextOTPStep        = "Enter the OTP sent to your phone."
	TextErrorTitle     = "Error"
	TextSendOTP        = "Send OTP"
	TextSendingOTP     = "Sending OTP..."
	TextVerifyOTP      = "Verify OTP"
	TextVerifying      = "Verifying..."
	TextResendOTP      = "Resend OTP"
	TextChangePhone    = "Change phone number"
	textResendCooldown = "Resend OTP in %ds"
)

// ResendLabel is the resend control label for s.
func ResendLabel(s login.State) string {
	if s.CooldownSeconds > 0 {
		return fmt.Sprintf(textResendCooldown, s.CooldownSeconds)
	}
	return TextResendOTP
}

// SubmitLabel is the label of the active step's submit control.
func SubmitLabel(s login.State) string {
	if s.Step == login.StepOTPEntry {
		if s.Loading {
			return TextVerifying
		}
		return TextVerifyOTP
	}
	if s.Loading {
		return TextSendingOTP
	}
	return TextSendOTP
}

type painter struct {
	p     Palette
	color bool
}

func (pt painter) paint(style, s string) string {
	if !pt.color || style == "" {
		return s
	}
	return style + s + ansiReset
}

// Render writes a full frame for s. color disables ANSI styling when false.
func Render(w io.Writer, s login.State, theme Theme, color bool) error {
	pt := painter{p: theme.Palette(), color: color}
	var b strings.Builder

	b.WriteString(pt.paint(pt.p.Title, TextTitle))
	b.WriteByte('\n')
	if s.Step == login.StepOTPEntry {
		b.WriteString(pt.paint(pt.p.Text, TextOTPStep))
	} else {
		b.WriteString(pt.paint(pt.p.Text, TextPhoneStep))
	}
	b.WriteString("\n\n")

	if s.Error != "" {
		b.WriteString(pt.paint(pt.p.Error, TextErrorTitle))
		b.WriteByte('\n')
		b.WriteString(pt.paint(pt.p.Error, s.Error))
		b.WriteString("\n\n")
	}

	switch s.Step {
	case login.StepOTPEntry:
		fmt.Fprintf(&b, "Code sent to %s\n", s.FullPhoneNumber())
		fmt.Fprintf(&b, "[%s]  ", pt.paint(pt.p.Accent, SubmitLabel(s)))
		resend := ResendLabel(s)
		if s.CanResend() {
			fmt.Fprintf(&b, "[%s :resend]  ", pt.paint(pt.p.Accent, resend))
		} else {
			fmt.Fprintf(&b, "[%s]  ", pt.paint(pt.p.Muted, resend))
		}
		fmt.Fprintf(&b, "[%s :change]\n", pt.paint(pt.p.Accent, TextChangePhone))
		b.WriteString(pt.paint(pt.p.Muted, "Type the 6-digit code and press Enter."))
	default:
		b.WriteString("Country code (:country <code>)\n")
		for _, c := range login.Countries {
			marker := "  "
			line := fmt.Sprintf("%s %s", c.Code, c.Name)
			if c.Code == s.CountryCode {
				marker = "> "
				line = pt.paint(pt.p.Accent, line)
			}
			b.WriteString(marker + line + "\n")
		}
		fmt.Fprintf(&b, "[%s]\n", pt.paint(pt.p.Accent, SubmitLabel(s)))
		b.WriteString(pt.paint(pt.p.Muted, "Type your phone number and press Enter."))
	}
	b.WriteString("\n")
	b.WriteString(pt.paint(pt.p.Muted, ":theme toggles colors, :quit exits"))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
