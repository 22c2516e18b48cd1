package login

import (
	"context"

	"chat-login/internal/api"
)

// OTPService is the backend the controller talks to; *api.Client implements it.
type OTPService interface {
	RequestOTP(ctx context.Context, phoneNumber string) (*api.OTPRequestResult, error)
	VerifyOTP(ctx context.Context, phoneNumber, code string) (*api.VerifyResult, error)
}

// Navigator hands a verified login off to the authenticated area.
type Navigator interface {
	Navigate(route string, result *api.VerifyResult)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string, result *api.VerifyResult)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(route string, result *api.VerifyResult) { f(route, result) }
