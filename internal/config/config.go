package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	KodiWSURL    string
	ChronicleURL string
	SQLitePath   string

	// Scrobble engine
	TickSec        int // orchestrator ticker cadence, must stay below the 15s floor
	DeviceName     string
	ClientName     string
	ShutdownSec    int // bounded wait for the poll loop on exit
	LogLevel       string
	LogFormat      string
	KodiRetryMax   int // seconds, cap for websocket reconnect backoff
	SnapshotOnDial bool
}

func Load() Config {
	dbPath := env("SQLITE_PATH", "/var/lib/chronicle-scrobbler/scrobbler.db")
	_ = os.MkdirAll(filepath.Dir(dbPath), 0755)

	kodiURL := env("KODI_WS_URL", "ws://localhost:9090/jsonrpc")
	chronicleURL := env("CHRONICLE_URL", "")

	cfg := Config{
		KodiWSURL:      kodiURL,
		ChronicleURL:   chronicleURL,
		SQLitePath:     dbPath,
		TickSec:        envInt("TICK_SEC", 5),
		DeviceName:     env("DEVICE_NAME", defaultDeviceName()),
		ClientName:     env("CLIENT_NAME", "Kodi"),
		ShutdownSec:    envInt("SHUTDOWN_SEC", 20),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "text"),
		KodiRetryMax:   envInt("KODI_RETRY_MAX_SEC", 30),
		SnapshotOnDial: envBool("SNAPSHOT_ON_DIAL", true),
	}

	fmt.Printf("[INFO] Using SQLite DB at: %s\n", dbPath)
	fmt.Printf("[INFO] Kodi JSON-RPC websocket: %s\n", kodiURL)
	if chronicleURL == "" {
		fmt.Println("[WARN] CHRONICLE_URL is not set! Scrobbles will be skipped until it is configured.")
	}
	return cfg
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "chronicle-scrobbler"
	}
	return "chronicle-scrobbler @ " + host
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
