package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatstats/chatstats/internal/config"
)

// newSetupServer builds a server with no store, the state before
// any database has been configured. The dotenv file lives in a
// temp dir so configure tests can inspect what got persisted.
func newSetupServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	cfg := config.Default()
	cfg.EnvPath = filepath.Join(t.TempDir(), ".env")
	cfg.SetupRequired = true
	return New(cfg, nil, opts...), cfg.EnvPath
}

func post(s *Server, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, path, strings.NewReader(body),
	)
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSetupStatus(t *testing.T) {
	s, _ := newSetupServer(t)
	rec := get(s, "/setup")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["setupRequired"])
}

func TestSetupFallbackOnAPIRoutes(t *testing.T) {
	s, _ := newSetupServer(t)
	rec := get(s, "/api/stats/overview")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeMap(t, rec)
	assert.Equal(t, true, body["setupRequired"])
	assert.Equal(t, "/setup", body["setupUrl"])
	assert.Contains(t, body["error"], "complete setup")
}

func TestSetupFallbackOnOtherRoutes(t *testing.T) {
	s, _ := newSetupServer(t)
	rec := get(s, "/anything")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeMap(t, rec)
	assert.Equal(t, true, body["setupRequired"])
	assert.NotContains(t, body, "setupUrl")
}

func TestSetupTestSQLite(t *testing.T) {
	s, _ := newSetupServer(t)

	t.Run("invalid body", func(t *testing.T) {
		rec := post(s, "/setup/test-sqlite", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing path", func(t *testing.T) {
		rec := post(s, "/setup/test-sqlite", `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File path is required",
			decodeMap(t, rec)["error"])
	})

	t.Run("nonexistent file", func(t *testing.T) {
		rec := post(s, "/setup/test-sqlite",
			`{"filePath": "/no/such/webui.db"}`)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, decodeMap(t, rec)["error"], "file not found")
	})

	t.Run("valid database", func(t *testing.T) {
		path := seedDatabase(t)
		rec := post(s, "/setup/test-sqlite",
			`{"filePath": "`+path+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeMap(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, path, body["path"])
	})
}

func TestSetupConfigureSQLite(t *testing.T) {
	s, envPath := newSetupServer(t)
	path := seedDatabase(t)

	rec := post(s, "/setup/configure",
		`{"type": "sqlite", "config": {"filePath": "`+path+`"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeMap(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["message"], "SQLite")

	saved, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, config.SQLiteURL(path), saved["DATABASE_URL"])
}

func TestSetupConfigureSQLiteBadPath(t *testing.T) {
	s, envPath := newSetupServer(t)

	rec := post(s, "/setup/configure",
		`{"type": "sqlite", "config": {"filePath": "/no/such.db"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing persisted on failure.
	_, err := godotenv.Read(envPath)
	assert.Error(t, err)
}

func TestSetupConfigureUnknownType(t *testing.T) {
	s, _ := newSetupServer(t)
	rec := post(s, "/setup/configure", `{"type": "oracle"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid database type", decodeMap(t, rec)["error"])
}

func TestSetupRestart(t *testing.T) {
	restarted := make(chan struct{})
	s, _ := newSetupServer(t, WithRestartFunc(func() {
		close(restarted)
	}))

	rec := post(s, "/setup/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["success"])

	// The callback fires after the response has gone out.
	select {
	case <-restarted:
	case <-time.After(3 * time.Second):
		t.Fatal("restart callback never fired")
	}
}

func TestSetupModeHidesStatsRoutes(t *testing.T) {
	s, _ := newSetupServer(t)
	for _, path := range []string{
		"/api/stats/models", "/api/stats/activity",
		"/api/stats/users", "/api/stats/tools", "/api/version",
	} {
		rec := get(s, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code,
			"path %s", path)
	}
}
