package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.RankingBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.StatsCacheTTL)
	assert.Equal(t, "0 3 * * *", cfg.RankingCron)
	assert.Equal(t, 10, cfg.TopUsersLimit)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "zero batch", env: map[string]string{"RANKING_BATCH_SIZE": "0"}},
		{name: "negative top users", env: map[string]string{"TOP_USERS_LIMIT": "-1"}},
		{name: "unknown timezone", env: map[string]string{"APP_TIMEZONE": "Mars/Olympus"}},
		{name: "bad duration", env: map[string]string{"STATS_CACHE_TTL": "soon"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfigLocation(t *testing.T) {
	var nilCfg *Config
	assert.Equal(t, time.UTC, nilCfg.Location())
	assert.Equal(t, time.UTC, (&Config{AppTimezone: "Nowhere/Nothing"}).Location())
	assert.Equal(t, "UTC", (&Config{AppTimezone: "UTC"}).Location().String())
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"gymops"`)
	assert.Contains(t, out, `"env":"staging"`)
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()

	router := NewRouter(RouterParams{Config: &Config{AppRequestTimeout: time.Second}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"ok"`))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
