package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/ride-relay/internal/config"
	"github.com/npezzotti/ride-relay/internal/server"
	"github.com/npezzotti/ride-relay/internal/stats"
	"github.com/npezzotti/ride-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelayApp(t *testing.T) {
	logger := testutil.TestLogger(t)
	relay := server.NewRelay(logger, (&stats.MockStatsUpdater{}).AllowAll())
	cfg := config.Default()
	cfg.ServerAddr = "localhost:8080"
	cfg.AllowedOrigins = []string{"http://localhost:3000"}

	app, err := NewRelayApp(http.NewServeMux(), logger, relay, cfg)
	require.NoError(t, err, "expected app to be created")

	assert.NotNil(t, app.srv, "expected http server to be initialized")
	assert.NotNil(t, app.newConnId, "expected connection id generator to be set")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, relay, app.relay, "expected relay to be set")
	assert.Equal(t, cfg.ServerAddr, app.srv.Addr, "expected server address to match config")
	assert.NotNil(t, app.Handler(), "expected handler to be set")
}

func TestNewRelayApp_unknownConnIdFormat(t *testing.T) {
	logger := testutil.TestLogger(t)
	cfg := config.Default()
	cfg.ConnIdFormat = "sequential"

	app, err := NewRelayApp(http.NewServeMux(), logger, nil, cfg)
	assert.Error(t, err, "expected error for unknown connection id format")
	assert.Nil(t, app)
}

func Test_checkOrigin(t *testing.T) {
	tcases := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{
			name:    "no origin header",
			allowed: nil,
			origin:  "",
			ok:      true,
		},
		{
			name:    "allowed origin",
			allowed: []string{"http://localhost:3000"},
			origin:  "http://localhost:3000",
			ok:      true,
		},
		{
			name:    "unknown origin",
			allowed: []string{"http://localhost:3000"},
			origin:  "http://evil.example.com",
			ok:      false,
		},
		{
			name:    "wildcard",
			allowed: []string{"*"},
			origin:  "http://anything.example.com",
			ok:      true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.AllowedOrigins = tc.allowed
			app := &RelayApp{cfg: cfg}

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			assert.Equal(t, tc.ok, app.checkOrigin(req))
		})
	}
}
