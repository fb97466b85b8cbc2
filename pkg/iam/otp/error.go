package otp

import (
	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("OTP")

var (
	CodeInvalidCode      = ErrRegistry.Register("INVALID_CODE", errx.TypeAuthentication, "Invalid two-factor code")
	CodeAlreadyEnabled   = ErrRegistry.Register("ALREADY_ENABLED", errx.TypeValidation, "Two-factor authentication is already enabled")
	CodeNotEnabled       = ErrRegistry.Register("NOT_ENABLED", errx.TypeValidation, "Two-factor authentication is not enabled")
	CodeSecretRequired   = ErrRegistry.Register("SECRET_REQUIRED", errx.TypeValidation, "No pending two-factor secret; start setup first")
	CodeGenerationFailed = ErrRegistry.Register("GENERATION_FAILED", errx.TypeInternal, "Could not generate two-factor material")
)

func ErrInvalidCode() *errx.Error    { return ErrRegistry.New(CodeInvalidCode) }
func ErrAlreadyEnabled() *errx.Error { return ErrRegistry.New(CodeAlreadyEnabled) }
func ErrNotEnabled() *errx.Error     { return ErrRegistry.New(CodeNotEnabled) }
func ErrSecretRequired() *errx.Error { return ErrRegistry.New(CodeSecretRequired) }
