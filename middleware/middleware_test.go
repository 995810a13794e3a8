package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"pong-arena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator map[string]string

func (v fakeValidator) ValidateToken(token, deviceID string) (*services.ValidateResponse, error) {
	userID, ok := v[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &services.ValidateResponse{UserID: userID, DeviceID: deviceID}, nil
}

func echoUser(c *fiber.Ctx) error {
	return c.SendString(UserID(c))
}

func call(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

var upgrade = map[string]string{"Connection": "Upgrade", "Upgrade": "websocket"}

func withUpgrade(extra map[string]string) map[string]string {
	h := map[string]string{}
	for k, v := range upgrade {
		h[k] = v
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", GatewayAuthMiddleware("secret"), echoUser)

	status, _ := call(t, app, "/", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = call(t, app, "/", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = call(t, app, "/", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, "/", map[string]string{"Authorization": "secret"})
	assert.Equal(t, fiber.StatusOK, status)

	open := fiber.New()
	open.Get("/", GatewayAuthMiddleware(""), echoUser)
	status, _ = call(t, open, "/", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestUserContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", UserContextMiddleware(), echoUser)

	status, _ := call(t, app, "/", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := call(t, app, "/", map[string]string{"X-User-ID": " alice "})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", body)
}

func TestWebSocketAuthWithValidator(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", WebSocketAuthMiddleware(fakeValidator{"tok-1": "alice"}), echoUser)

	status, _ := call(t, app, "/ws?token=tok-1&device_id=d1", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)

	status, _ = call(t, app, "/ws?token=tok-1", upgrade)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "/ws?token=nope&device_id=d1", upgrade)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := call(t, app, "/ws?token=tok-1&device_id=d1", upgrade)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", body)
}

func TestWebSocketAuthTrustsGatewayWithoutValidator(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", WebSocketAuthMiddleware(nil), echoUser)

	status, _ := call(t, app, "/ws", upgrade)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := call(t, app, "/ws", withUpgrade(map[string]string{"X-User-ID": "bob"}))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "bob", body)

	status, body = call(t, app, "/ws?user_id=carol", upgrade)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "carol", body)
}
