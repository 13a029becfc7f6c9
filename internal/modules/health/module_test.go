package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"digit_bot/internal/metrics"
	"digit_bot/internal/models"
	"digit_bot/internal/modules/health/service"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxEndpoints(t *testing.T) {
	state := service.NewState()
	reg := metrics.NewRegistry()
	metrics.New(reg)
	srv := httptest.NewServer(NewMux(state, reg))
	defer srv.Close()

	get := func(path string) (*http.Response, []byte) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, body
	}

	resp, _ := get("/livez")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	state.Observe(models.NewEvent(models.EventAuthorized, models.AuthorizedPayload{
		Account: models.Account{LoginID: "VRTC9"},
	}))
	resp, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var h map[string]any
	require.NoError(t, sonic.Unmarshal(body, &h))
	assert.Equal(t, "VRTC9", h["loginid"])
	assert.Equal(t, true, h["wsConnected"])

	resp, body = get("/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "digitbot_relay_pairs")
}
