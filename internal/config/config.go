package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the session server listens on.
	DefaultAddr = ":43117"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultDatabasePath is the sqlite file backing match and tournament records.
	DefaultDatabasePath = "pongarena.db"

	// DefaultScoreLimit ends a match once either side reaches this score.
	DefaultScoreLimit = 5
	// DefaultTickRate is the simulation frequency in ticks per second.
	DefaultTickRate = 60.0

	// DefaultLobbyCreateWindow bounds how frequently one connection may create lobbies.
	DefaultLobbyCreateWindow = time.Minute
	// DefaultLobbyCreateBurst sets how many lobbies one connection may create per window.
	DefaultLobbyCreateBurst = 5

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "pongarena.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the session server.
type Config struct {
	Address           string
	AllowedOrigins    []string
	MaxPayloadBytes   int64
	PingInterval      time.Duration
	MaxClients        int
	DatabasePath      string
	ReplayDir         string
	ScoreLimit        int
	TickRate          float64
	LobbyCreateWindow time.Duration
	LobbyCreateBurst  int
	Logging           LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Default returns the configuration with every default applied and no
// environment overrides. Tests and embedded callers start from it.
func Default() *Config {
	return &Config{
		Address:           DefaultAddr,
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		PingInterval:      DefaultPingInterval,
		MaxClients:        DefaultMaxClients,
		DatabasePath:      DefaultDatabasePath,
		ScoreLimit:        DefaultScoreLimit,
		TickRate:          DefaultTickRate,
		LobbyCreateWindow: DefaultLobbyCreateWindow,
		LobbyCreateBurst:  DefaultLobbyCreateBurst,
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Path:       DefaultLogPath,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:           getString("PONG_ADDR", DefaultAddr),
		AllowedOrigins:    parseList(os.Getenv("PONG_ALLOWED_ORIGINS")),
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		PingInterval:      DefaultPingInterval,
		MaxClients:        DefaultMaxClients,
		DatabasePath:      getString("PONG_DB_PATH", DefaultDatabasePath),
		ReplayDir:         strings.TrimSpace(os.Getenv("PONG_REPLAY_DIR")),
		ScoreLimit:        DefaultScoreLimit,
		TickRate:          DefaultTickRate,
		LobbyCreateWindow: DefaultLobbyCreateWindow,
		LobbyCreateBurst:  DefaultLobbyCreateBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("PONG_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("PONG_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("PONG_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_SCORE_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_SCORE_LIMIT must be a positive integer, got %q", raw))
		} else {
			cfg.ScoreLimit = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_TICK_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_TICK_RATE must be a positive number, got %q", raw))
		} else {
			cfg.TickRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOBBY_CREATE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOBBY_CREATE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.LobbyCreateWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOBBY_CREATE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOBBY_CREATE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.LobbyCreateBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("PONG_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		problems = append(problems, "PONG_DB_PATH must not be blank")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
