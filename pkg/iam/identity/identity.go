// Package identity holds the request and response shapes of the identity use
// cases, their validation, and the service's metrics.
package identity

import (
	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("IDENTITY")

var (
	// CodeInvalidCredentials covers wrong passwords, unknown users and locked
	// accounts alike.
	CodeInvalidCredentials       = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthentication, "Invalid credentials")
	CodeInvalidTwoFactor         = ErrRegistry.Register("INVALID_TWO_FACTOR", errx.TypeAuthentication, "Invalid two-factor code")
	CodeCurrentPasswordIncorrect = ErrRegistry.Register("CURRENT_PASSWORD_INCORRECT", errx.TypeAuthentication, "Current password is incorrect")
	CodeInvalidRequest           = ErrRegistry.Register("INVALID_REQUEST", errx.TypeValidation, "Invalid request")
	CodePermissionNotHeld        = ErrRegistry.Register("PERMISSION_NOT_HELD", errx.TypeAuthorization, "Cannot delegate a permission you do not hold")
)

func ErrInvalidCredentials() *errx.Error       { return ErrRegistry.New(CodeInvalidCredentials) }
func ErrInvalidTwoFactor() *errx.Error         { return ErrRegistry.New(CodeInvalidTwoFactor) }
func ErrCurrentPasswordIncorrect() *errx.Error { return ErrRegistry.New(CodeCurrentPasswordIncorrect) }
func ErrInvalidRequest() *errx.Error           { return ErrRegistry.New(CodeInvalidRequest) }
func ErrPermissionNotHeld() *errx.Error        { return ErrRegistry.New(CodePermissionNotHeld) }
