package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/chatstats/chatstats/internal/config"
	"github.com/chatstats/chatstats/internal/db"
)

// setupResponse is returned by successful setup actions.
type setupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// handleSetupStatus tells the frontend that first-run setup is
// pending.
func (s *Server) handleSetupStatus(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"setupRequired": true,
	})
}

// probeDatabase opens and immediately closes a connection to
// verify a candidate DSN before persisting it.
func probeDatabase(dsn string) error {
	store, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return store.Close()
}

// handleSetupTestSQLite validates a candidate SQLite file path
// without persisting anything.
func (s *Server) handleSetupTestSQLite(
	w http.ResponseWriter, r *http.Request,
) {
	var req struct {
		FilePath string `json:"filePath"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "File path is required")
		return
	}

	path, err := config.ResolveSQLitePath(req.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := probeDatabase(config.SQLiteURL(path)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, setupResponse{
		Success: true, Path: path,
	})
}

// setupConfigureRequest is the body of POST /setup/configure.
type setupConfigureRequest struct {
	Type   string `json:"type"`
	Config struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Database string `json:"database"`
		Username string `json:"username"`
		Password string `json:"password"`
		FilePath string `json:"filePath"`
	} `json:"config"`
}

// handleSetupConfigure tests the submitted backend connection
// and persists it to the dotenv file on success.
func (s *Server) handleSetupConfigure(
	w http.ResponseWriter, r *http.Request,
) {
	var req setupConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Type {
	case "postgresql":
		dsn := config.BuildPostgresURL(
			req.Config.Host, req.Config.Port,
			req.Config.Database, req.Config.Username,
			req.Config.Password,
		)
		if err := probeDatabase(dsn); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.cfg.SaveDatabaseURL(dsn); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, setupResponse{
			Success: true,
			Message: "PostgreSQL configuration saved successfully",
		})

	case "sqlite":
		path, err := config.ResolveSQLitePath(req.Config.FilePath)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		dsn := config.SQLiteURL(path)
		if err := probeDatabase(dsn); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.cfg.SaveDatabaseURL(dsn); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, setupResponse{
			Success: true,
			Message: "SQLite configuration saved successfully",
		})

	default:
		writeError(w, http.StatusBadRequest, "Invalid database type")
	}
}

// handleSetupRestart acknowledges and then triggers the restart
// callback, giving the response a moment to flush.
func (s *Server) handleSetupRestart(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, setupResponse{
		Success: true, Message: "Restarting server...",
	})
	if s.restartFn != nil {
		restart := s.restartFn
		go func() {
			time.Sleep(time.Second)
			restart()
		}()
	}
}

// handleSetupFallback answers every non-setup route with 503
// until a database is configured.
func (s *Server) handleSetupFallback(
	w http.ResponseWriter, r *http.Request,
) {
	body := map[string]any{
		"error":         "Database not configured. Setup required.",
		"setupRequired": true,
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		body["error"] = "Database not configured. Please complete setup first."
		body["setupUrl"] = "/setup"
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}
