package notifxses

import "github.com/Abraxas-365/nexus-iam/pkg/errx"

var ErrRegistry = errx.NewRegistry("NOTIFX_SES")

var CodeSendFailed = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, "SES send email failed")
