package services

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// AuthServiceClient validates player access tokens against the auth service.
type AuthServiceClient struct {
	rest *resty.Client
}

type ValidateResponse struct {
	UserID   string   `json:"user_id"`
	DeviceID string   `json:"device_id"`
	Roles    []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, serviceToken string) *AuthServiceClient {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")
	if serviceToken != "" {
		rest.SetAuthToken(serviceToken)
	}
	return &AuthServiceClient{rest: rest}
}

// ValidateToken calls /auth/validate and returns the identity behind
// accessToken.
func (c *AuthServiceClient) ValidateToken(accessToken, deviceID string) (*ValidateResponse, error) {
	var out ValidateResponse
	resp, err := c.rest.R().
		SetBody(map[string]string{
			"access_token": accessToken,
			"device_id":    deviceID,
		}).
		SetResult(&out).
		Post("/auth/validate")
	if err != nil {
		return nil, eris.Wrap(err, "auth validation request failed")
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("auth service rejected token")
		return nil, eris.Errorf("auth validation failed: %d", resp.StatusCode())
	}
	if out.UserID == "" {
		return nil, eris.New("auth validation returned no user")
	}
	return &out, nil
}
