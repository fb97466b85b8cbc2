package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateBackupCodes returns the configured number of single-use recovery
// codes, each 8 upper-case hex characters. Only HashBackupCode output should
// be stored.
func (s *Service) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, s.cfg.BackupCodeCount)
	seen := make(map[string]struct{}, s.cfg.BackupCodeCount)
	buf := make([]byte, 4)

	for len(codes) < s.cfg.BackupCodeCount {
		if _, err := rand.Read(buf); err != nil {
			return nil, ErrRegistry.NewWithCause(CodeGenerationFailed, err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashBackupCode returns the stored form of a backup code. Input is
// normalized so users may type lower case or surrounding spaces.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code.
func HashBackupCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(c)
	}
	return out
}
