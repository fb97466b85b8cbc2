package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

func TestValidateRegisterRequest(t *testing.T) {
	ok := RegisterRequest{
		Email:     "alice@example.com",
		Username:  "alice",
		FirstName: "Alice",
		LastName:  "Liddell",
		Password:  "P1-Wonderland",
	}
	assert.NoError(t, Validate(ok))

	bad := ok
	bad.Email = "not-an-email"
	bad.Provider = "myspace"
	err := Validate(bad)
	require.True(t, errx.IsCode(err, CodeInvalidRequest))

	var e *errx.Error
	require.ErrorAs(t, err, &e)
	fields, _ := e.Details["fields"].(map[string]string)
	assert.Equal(t, "email", fields["email"])
	assert.Contains(t, fields["provider"], "oneof")
}

func TestValidateCreateAPIKeyRequestDives(t *testing.T) {
	req := CreateAPIKeyRequest{
		Name:        "ci",
		Permissions: []PermissionInput{{ResourceType: "project"}},
		AllowedIPs:  []string{"10.0.0.0/8", "nope"},
	}
	err := Validate(req)
	require.True(t, errx.IsCode(err, CodeInvalidRequest))

	var e *errx.Error
	require.ErrorAs(t, err, &e)
	fields, _ := e.Details["fields"].(map[string]string)
	assert.Equal(t, "required", fields["permissions[0].permission_type"])
	assert.Contains(t, fields, "allowed_ips[1]")
}

func TestValidateEnableTwoFactorRequest(t *testing.T) {
	assert.NoError(t, Validate(EnableTwoFactorRequest{TOTPCode: "123456"}))
	assert.Error(t, Validate(EnableTwoFactorRequest{TOTPCode: "12345a"}))
	assert.Error(t, Validate(EnableTwoFactorRequest{TOTPCode: "1234567"}))
}
