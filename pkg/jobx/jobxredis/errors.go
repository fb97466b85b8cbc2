package jobxredis

import "github.com/Abraxas-365/nexus-iam/pkg/errx"

var ErrRegistry = errx.NewRegistry("JOBX_REDIS")

var (
	CodeStore   = ErrRegistry.Register("STORE", errx.TypeUnavailable, "Job queue unavailable")
	CodeCorrupt = ErrRegistry.Register("CORRUPT", errx.TypeInternal, "Stored job could not be decoded")
)
