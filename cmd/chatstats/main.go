// Command chatstats serves read-only usage statistics from a
// chat application's database (SQLite or PostgreSQL) to a
// dashboard frontend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatstats/chatstats/internal/config"
	"github.com/chatstats/chatstats/internal/db"
	"github.com/chatstats/chatstats/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("chatstats %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`chatstats %s - usage statistics API for chat databases

Computes user, chat, model, and tool usage aggregates from an
Open WebUI style database and serves them as JSON. Works against
a SQLite file (read-only) or a PostgreSQL server; results are
identical either way.

Usage:
  chatstats [flags]          Start the server (default command)
  chatstats serve [flags]    Start the server (explicit)
  chatstats version          Show version information
  chatstats help             Show this help

Server flags:
  -host string    Host to bind to (default "127.0.0.1")
  -port int       Port to listen on (default 3001)
  -env string     Path to the dotenv config file (default ".env")

Environment variables:
  DATABASE_URL    sqlite:///path/to/webui.db or postgresql://...
  HOST, PORT      Listen address overrides

Without DATABASE_URL and without a ./webui.db file, the server
starts in setup mode and persists the chosen backend to the
dotenv file; the file watcher then restarts the process to apply
it.
`, version)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	envPath := ""
	if f := fs.Lookup("env"); f != nil {
		envPath = f.Value.String()
	}

	cfg, err := config.Load(envPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	config.ApplyFlags(&cfg, fs)

	var store *db.Store
	if cfg.SetupRequired {
		log.Print("No database configuration found. Starting in setup mode.")
	} else {
		store, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("opening database: %v", err)
		}
		defer store.Close()
	}

	restart := make(chan struct{}, 1)
	requestRestart := func() {
		select {
		case restart <- struct{}{}:
		default:
		}
	}

	srv := server.New(cfg, store,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
		server.WithRestartFunc(requestRestart),
	)

	stopWatcher := watchConfigFile(cfg.EnvPath, requestRestart)
	defer stopWatcher()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-sig:
		log.Print("Shutting down")
	case <-restart:
		// Exit cleanly so a supervisor restarts the process
		// against the newly written configuration.
		log.Printf("Configuration changed in %s, restarting", cfg.EnvPath)
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// watchConfigFile watches the dotenv file's directory and calls
// onChange when the file is created or rewritten. Watching the
// directory rather than the file survives editors that replace
// the file on save.
func watchConfigFile(path string, onChange func()) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("config watcher unavailable: %v", err)
		return func() {}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		log.Printf("watching %s: %v", dir, err)
		watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Op.Has(fsnotify.Create) &&
					!ev.Op.Has(fsnotify.Write) &&
					!ev.Op.Has(fsnotify.Rename) {
					continue
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher: %v", err)
			}
		}
	}()

	return func() { watcher.Close() }
}
