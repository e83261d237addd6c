package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env string

	Host string
	Port int
	// Address a client connects to, host:port.
	ServerAddr string

	MaxClients        int
	TickRate          int
	TargetFps         int
	DisconnectTimeout time.Duration
	HandshakeTimeout  time.Duration
	HandshakeAttempts int
	PingPeriod        time.Duration
	InputsPerPacket   int

	LogFile       string
	SpectatorAddr string
}

func Default() Config {
	return Config{
		Env:               "development",
		Port:              27001,
		ServerAddr:        "127.0.0.1:27001",
		MaxClients:        8,
		TickRate:          20,
		TargetFps:         60,
		DisconnectTimeout: 7 * time.Second,
		HandshakeTimeout:  time.Second,
		HandshakeAttempts: 10,
		PingPeriod:        3 * time.Second,
		InputsPerPacket:   1,
		SpectatorAddr:     ":8080",
	}
}

// Load builds a config from defaults, then a .env file if present, then ARENA_*
// environment variables, then command line flags.
func Load(name string, args []string) (Config, error) {
	if dotenvErr := godotenv.Load(); dotenvErr != nil && !os.IsNotExist(dotenvErr) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", dotenvErr)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Interface to bind the game socket to")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "UDP port of the game server")
	fs.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "Game server address for clients")
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Client slots on the server")
	fs.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "STATE broadcasts per second")
	fs.IntVar(&cfg.TargetFps, "target-fps", cfg.TargetFps, "Simulation steps per second")
	fs.DurationVar(&cfg.DisconnectTimeout, "disconnect-timeout", cfg.DisconnectTimeout, "Silence after which a peer is dropped")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Wait before resending a handshake packet")
	fs.IntVar(&cfg.HandshakeAttempts, "handshake-attempts", cfg.HandshakeAttempts, "Handshake packets sent before giving up, 0 for no limit")
	fs.DurationVar(&cfg.PingPeriod, "ping-period", cfg.PingPeriod, "Time between client pings")
	fs.IntVar(&cfg.InputsPerPacket, "inputs-per-packet", cfg.InputsPerPacket, "Input records batched into one INPUT packet")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	fs.StringVar(&cfg.SpectatorAddr, "spectator-addr", cfg.SpectatorAddr, "HTTP address of the spectator feed, empty to disable")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("ARENA_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("ARENA_SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
	if v, has := os.LookupEnv("ARENA_LOG_FILE"); has {
		c.LogFile = v
	}
	if v, has := os.LookupEnv("ARENA_SPECTATOR_ADDR"); has {
		c.SpectatorAddr = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"ARENA_PORT", &c.Port},
		{"ARENA_MAX_CLIENTS", &c.MaxClients},
		{"ARENA_TICK_RATE", &c.TickRate},
		{"ARENA_TARGET_FPS", &c.TargetFps},
		{"ARENA_HANDSHAKE_ATTEMPTS", &c.HandshakeAttempts},
		{"ARENA_INPUTS_PER_PACKET", &c.InputsPerPacket},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", e.name, err)
		}
		*e.dst = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"ARENA_DISCONNECT_TIMEOUT", &c.DisconnectTimeout},
		{"ARENA_HANDSHAKE_TIMEOUT", &c.HandshakeTimeout},
		{"ARENA_PING_PERIOD", &c.PingPeriod},
	}
	for _, e := range durations {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", e.name, err)
		}
		*e.dst = d
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxClients < 1 || c.MaxClients > 8 {
		return fmt.Errorf("max clients must be between 1 and 8, got %d", c.MaxClients)
	}
	if c.TickRate < 1 || c.TargetFps < 1 {
		return fmt.Errorf("tick rate and target fps must be positive")
	}
	if c.TickRate > c.TargetFps {
		return fmt.Errorf("tick rate %d exceeds target fps %d", c.TickRate, c.TargetFps)
	}
	if c.InputsPerPacket < 1 || c.InputsPerPacket > 16 {
		return fmt.Errorf("inputs per packet must be between 1 and 16, got %d", c.InputsPerPacket)
	}
	if c.DisconnectTimeout <= 0 || c.HandshakeTimeout <= 0 || c.PingPeriod <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
