package user

import (
	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, "User not found")
	CodeEmailTaken        = ErrRegistry.Register("EMAIL_TAKEN", errx.TypeValidation, "Email is already registered")
	CodeUsernameTaken     = ErrRegistry.Register("USERNAME_TAKEN", errx.TypeValidation, "Username is already taken")
	CodeInvalidUser       = ErrRegistry.Register("INVALID", errx.TypeValidation, "Invalid user data")
	CodeInvalidRole       = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, "Unknown role")
	CodeInvalidPermission = ErrRegistry.Register("INVALID_PERMISSION", errx.TypeValidation, "Invalid permission")
	CodeConcurrentUpdate  = ErrRegistry.Register("CONCURRENT_UPDATE", errx.TypeConflict, "User was modified concurrently")
	CodeSessionNotFound   = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, "Session not found")
	CodeNoPassword        = ErrRegistry.Register("NO_PASSWORD", errx.TypeValidation, "Account has no local password")
)

func ErrUserNotFound() *errx.Error      { return ErrRegistry.New(CodeUserNotFound) }
func ErrEmailTaken() *errx.Error        { return ErrRegistry.New(CodeEmailTaken) }
func ErrUsernameTaken() *errx.Error     { return ErrRegistry.New(CodeUsernameTaken) }
func ErrInvalidUser() *errx.Error       { return ErrRegistry.New(CodeInvalidUser) }
func ErrInvalidRole() *errx.Error       { return ErrRegistry.New(CodeInvalidRole) }
func ErrInvalidPermission() *errx.Error { return ErrRegistry.New(CodeInvalidPermission) }
func ErrConcurrentUpdate() *errx.Error  { return ErrRegistry.New(CodeConcurrentUpdate) }
func ErrSessionNotFound() *errx.Error   { return ErrRegistry.New(CodeSessionNotFound) }
func ErrNoPassword() *errx.Error        { return ErrRegistry.New(CodeNoPassword) }
