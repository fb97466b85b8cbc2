// Package iam is the identity and access core: user accounts, credentials,
// sessions, tokens, second factors, API keys and permission evaluation.
//
// # Layout
//
//   - iam/password     secret hashing and strength scoring
//   - iam/otp          TOTP verification and backup codes
//   - iam/authz        roles, permissions and the ordered evaluation rules
//   - iam/apikey       machine credentials; apikeysrv validates, apikeyinfra persists
//   - iam/user         the User aggregate, its events and repository port
//   - iam/auth         JWT issuance and decoding, revocation, fiber middleware
//   - iam/session      TTL-bound session records
//   - iam/identity     use cases (identitysrv) and HTTP handlers (identityapi)
//   - iam/alert        security alert emails, queued through jobx and sent via notifx
//   - iam/iamcontainer wiring of the above
//
// Each sub-package follows the same shape:
//
//	HTTP Handler  →  Service Layer  →  Repository Interface  →  Infrastructure (Postgres/Redis)
//
// # Consistency
//
// The User aggregate is the only source of truth for identity state. Every
// change goes through one aggregate operation, bumps its version, and is saved
// with an optimistic version check. Sessions, refresh tokens and the token
// blacklist live in a TTL store written after the aggregate commits.
//
// # Errors
//
// Every sub-package exposes an errx registry. Token failures of every kind
// reach the client as IAM_INVALID_TOKEN, and a locked account answers exactly
// like a wrong password.
package iam
