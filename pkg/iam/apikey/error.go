package apikey

import (
	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("APIKEY")

var (
	CodeNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, "API key not found")
	CodeInvalid          = ErrRegistry.Register("INVALID", errx.TypeAuthentication, "Invalid API key")
	CodeInvalidParams    = ErrRegistry.Register("INVALID_PARAMS", errx.TypeValidation, "Invalid API key parameters")
	CodeIPNotAllowed     = ErrRegistry.Register("IP_NOT_ALLOWED", errx.TypeAuthorization, "API key not allowed from this address")
	CodeRateLimited      = ErrRegistry.Register("RATE_LIMITED", errx.TypeAuthorization, "API key rate limit exceeded")
	CodeGenerationFailed = ErrRegistry.Register("GENERATION_FAILED", errx.TypeInternal, "Could not generate API key")
)

func ErrNotFound() *errx.Error      { return ErrRegistry.New(CodeNotFound) }
func ErrInvalid() *errx.Error       { return ErrRegistry.New(CodeInvalid) }
func ErrInvalidParams() *errx.Error { return ErrRegistry.New(CodeInvalidParams) }
func ErrIPNotAllowed() *errx.Error  { return ErrRegistry.New(CodeIPNotAllowed) }
func ErrRateLimited() *errx.Error   { return ErrRegistry.New(CodeRateLimited) }
