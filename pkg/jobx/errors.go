package jobx

import "github.com/Abraxas-365/nexus-iam/pkg/errx"

var ErrRegistry = errx.NewRegistry("JOBX")

var (
	CodeInvalidJob     = ErrRegistry.Register("INVALID_JOB", errx.TypeValidation, "Invalid job definition")
	CodeInvalidPayload = ErrRegistry.Register("INVALID_PAYLOAD", errx.TypeValidation, "Job payload could not be decoded")
	CodeNoHandler      = ErrRegistry.Register("NO_HANDLER", errx.TypeInternal, "No handler registered for job type")
	CodeJobNotFound    = ErrRegistry.Register("JOB_NOT_FOUND", errx.TypeNotFound, "Job not found")
	CodeAlreadyRunning = ErrRegistry.Register("ALREADY_RUNNING", errx.TypeConflict, "Worker is already running")
)
