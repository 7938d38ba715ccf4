package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/utils"
)

const secret = "middleware-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": GetUserID(c), "tenant": GetTenantID(c)})
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	token, err := utils.GenerateToken(secret, 5, 3, "erin", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer header", "Bearer " + token, "", fiber.StatusOK},
		{"lower-case scheme", "bearer " + token, "", fiber.StatusOK},
		{"cookie fallback", "", token, fiber.StatusOK},
		{"missing", "", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", "", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", "token="+tt.cookie)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.JSONEq(t, `{"user":5,"tenant":3}`, string(body))
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("  Bearer   abc "))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}
