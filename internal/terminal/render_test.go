package terminal

import (
	"bytes"
	"strings"
	"testing"

	"chat-login/internal/login"
)

func TestTheme_Toggle(t *testing.T) {
	if got := ThemeDark.Toggle(); got != ThemeLight {
		t.Errorf("dark.Toggle() = %q, want light", got)
	}
	if got := ThemeLight.Toggle(); got != ThemeDark {
		t.Errorf("light.Toggle() = %q, want dark", got)
	}
	if got := Theme("").Toggle(); got != ThemeDark {
		t.Errorf("unknown.Toggle() = %q, want dark", got)
	}
	if ThemeDark.Palette() == ThemeLight.Palette() {
		t.Error("dark and light palettes should differ")
	}
}

func TestLabels(t *testing.T) {
	testCases := []struct {
		name       string
		state      login.State
		wantSubmit string
		wantResend string
	}{
		{"phone idle", login.State{Step: login.StepPhoneEntry}, TextSendOTP, TextResendOTP},
		{"phone loading", login.State{Step: login.StepPhoneEntry, Loading: true}, TextSendingOTP, TextResendOTP},
		{"otp idle", login.State{Step: login.StepOTPEntry}, TextVerifyOTP, TextResendOTP},
		{"otp loading", login.State{Step: login.StepOTPEntry, Loading: true}, TextVerifying, TextResendOTP},
		{"otp cooldown", login.State{Step: login.StepOTPEntry, CooldownSeconds: 12}, TextVerifyOTP, "Resend OTP in 12s"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SubmitLabel(tc.state); got != tc.wantSubmit {
				t.Errorf("SubmitLabel = %q, want %q", got, tc.wantSubmit)
			}
			if got := ResendLabel(tc.state); got != tc.wantResend {
				t.Errorf("ResendLabel = %q, want %q", got, tc.wantResend)
			}
		})
	}
}

func TestRender_PhoneStep(t *testing.T) {
	var buf bytes.Buffer
	st := login.State{Step: login.StepPhoneEntry, CountryCode: "+44"}
	if err := Render(&buf, st, ThemeDark, false); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{TextTitle, TextPhoneStep, "> +44 UK", "  +91 India", "[" + TextSendOTP + "]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, TextErrorTitle+"\n") {
		t.Errorf("error block rendered without an error:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("output should not contain ANSI sequences when color is off")
	}
}

func TestRender_OTPStepWithError(t *testing.T) {
	var buf bytes.Buffer
	st := login.State{
		Step:            login.StepOTPEntry,
		CountryCode:     "+91",
		PhoneNumber:     "9876543210",
		CooldownSeconds: 5,
		Error:           login.MsgIncorrectOTP,
	}
	if err := Render(&buf, st, ThemeLight, false); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{TextOTPStep, TextErrorTitle + "\n" + login.MsgIncorrectOTP, "+919876543210", "Resend OTP in 5s", TextChangePhone} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Resend OTP in 5s :resend") {
		t.Error("resend command should not be offered during cooldown")
	}
}

func TestRender_Color(t *testing.T) {
	var dark, light bytes.Buffer
	st := login.State{Step: login.StepPhoneEntry, CountryCode: "+91"}
	if err := Render(&dark, st, ThemeDark, true); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := Render(&light, st, ThemeLight, true); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(dark.String(), ThemeDark.Palette().Title+TextTitle+ansiReset) {
		t.Error("dark title should be styled with the dark palette")
	}
	if dark.String() == light.String() {
		t.Error("themes should render differently")
	}
}
