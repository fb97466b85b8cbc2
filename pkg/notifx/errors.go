package notifx

import "github.com/Abraxas-365/nexus-iam/pkg/errx"

var ErrRegistry = errx.NewRegistry("NOTIFX")

var (
	CodeInvalidMessage   = ErrRegistry.Register("INVALID_MESSAGE", errx.TypeValidation, "Invalid email message")
	CodeTemplateNotFound = ErrRegistry.Register("TEMPLATE_NOT_FOUND", errx.TypeInternal, "Email template not found")
	CodeTemplateInvalid  = ErrRegistry.Register("TEMPLATE_INVALID", errx.TypeInternal, "Email template could not be parsed")
	CodeTemplateRender   = ErrRegistry.Register("TEMPLATE_RENDER", errx.TypeInternal, "Email template could not be rendered")
	CodeSendFailed       = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, "Email provider rejected the message")
)
