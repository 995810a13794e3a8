package services

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/validate", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body["access_token"] != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"user_id":"alice","device_id":"` + body["device_id"] + `","roles":["player"]}`))
	}))
	defer srv.Close()

	client := NewAuthServiceClient(srv.URL, "svc-token")

	got, err := client.ValidateToken("good", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, &ValidateResponse{UserID: "alice", DeviceID: "dev-1", Roles: []string{"player"}}, got)

	_, err = client.ValidateToken("bad", "dev-1")
	assert.Error(t, err)
}
