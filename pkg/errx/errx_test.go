package errx

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeStatusMapping(t *testing.T) {
	cases := map[Type]int{
		TypeValidation:     400,
		TypeAuthentication: 401,
		TypeAuthorization:  403,
		TypeNotFound:       404,
		TypeConflict:       409,
		TypeInternal:       500,
		TypeUnavailable:    503,
	}
	for typ, status := range cases {
		assert.Equal(t, status, New("x", typ).HTTPStatus, typ)
	}
}

func TestRegistryAndIsCode(t *testing.T) {
	reg := NewRegistry("TEST")
	missing := reg.Register("MISSING", TypeNotFound, "missing")
	other := reg.Register("OTHER", TypeValidation, "other")

	err := fmt.Errorf("loading: %w", reg.New(missing).WithDetail("id", "42"))

	assert.True(t, IsCode(err, missing))
	assert.False(t, IsCode(err, other))
	assert.Equal(t, TypeNotFound, TypeOf(err))
	assert.Equal(t, 404, HTTPStatusOf(err))
	assert.Equal(t, "TEST_MISSING", missing.Code)

	found, ok := reg.Lookup("MISSING")
	require.True(t, ok)
	assert.Same(t, missing, found)
	assert.Panics(t, func() { reg.Register("MISSING", TypeNotFound, "again") })
}

func TestWrapKeepsCode(t *testing.T) {
	reg := NewRegistry("TEST")
	code := reg.Register("GONE", TypeNotFound, "gone")

	wrapped := Wrap(reg.New(code), "while loading", TypeInternal)
	assert.Equal(t, code.Code, wrapped.Code)
	assert.Equal(t, 404, wrapped.HTTPStatus)
	assert.Nil(t, Wrap(nil, "noop", TypeInternal))
}

func TestFiberErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/conflict", func(c *fiber.Ctx) error { return Conflict("busy") })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("secret db detail") })

	resp, err := app.Test(httptest.NewRequest("GET", "/conflict", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(body), "secret db detail")
}
