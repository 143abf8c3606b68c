package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	"werewolf-bdd/harness"
)

const SocketURLEnv = "WEREWOLF_SOCKET_URL"

// Config drives one run of the scenario driver.
type Config struct {
	SocketURL    string
	Players      []string
	LogLevel     int
	LogPath      string
	StepDelay    time.Duration
	OpenTimeout  time.Duration
	StepTimeout  time.Duration
	CloseTimeout time.Duration
	NameHeader   string
	MetricsAddr  string
	ReportPath   string
	ReportURL    string
	Scenarios    []string
}

// NewConfigFromFlags parses args into a Config. The socket URL falls back to
// WEREWOLF_SOCKET_URL when the flag is not given.
func NewConfigFromFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	socketURL := fs.String(
		"socket-url", "", "Websocket endpoint of the game server (env "+SocketURLEnv+")")
	players := fs.String(
		"players", "", "Comma-separated player names, overriding the default roster")
	logLevel := fs.Int(
		"log-level", 0, "Log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error")
	logPath := fs.String(
		"log-path",
		"",
		"Directory to the logs, otherwise will use working directory and add 'logs' to that path")
	stepDelay := fs.Duration(
		"step-delay", 0, "Pause between scenario steps")
	openTimeout := fs.Duration(
		"open-timeout", 10*time.Second, "How long players may take to finish their handshake")
	stepTimeout := fs.Duration(
		"step-timeout", 5*time.Second, "How long an expectation may wait for a message")
	closeTimeout := fs.Duration(
		"close-timeout", 5*time.Second, "How long teardown may take")
	nameHeader := fs.String(
		"name-header", "", "Handshake header carrying the player name, empty to disable")
	metricsAddr := fs.String(
		"metrics-addr", "", "Serve Prometheus metrics on this address, empty to disable")
	reportPath := fs.String(
		"report", "", "Write a zstd-compressed JSON run report to this path")
	reportURL := fs.String(
		"report-url", "", "POST the run report to this URL")
	scenarios := fs.String(
		"scenarios", "", "Comma-separated scenario names to run, empty runs all")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *socketURL == "" {
		*socketURL = os.Getenv(SocketURLEnv)
	}

	return &Config{
		SocketURL:    *socketURL,
		Players:      splitList(*players),
		LogLevel:     *logLevel,
		LogPath:      *logPath,
		StepDelay:    *stepDelay,
		OpenTimeout:  *openTimeout,
		StepTimeout:  *stepTimeout,
		CloseTimeout: *closeTimeout,
		NameHeader:   *nameHeader,
		MetricsAddr:  *metricsAddr,
		ReportPath:   *reportPath,
		ReportURL:    *reportURL,
		Scenarios:    splitList(*scenarios),
	}, nil
}

func (c *Config) Validate() error {
	if c.SocketURL == "" {
		return fmt.Errorf("--socket-url (or %s) is required", SocketURLEnv)
	}

	if err := harness.ValidateEndpoint(c.SocketURL); err != nil {
		return fmt.Errorf("--socket-url: %w", err)
	}

	seen := map[string]struct{}{}
	for _, name := range c.Players {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("--players: %w: %s", harness.ErrDuplicateName, name)
		}
		seen[name] = struct{}{}
	}

	if c.StepDelay < 0 {
		return fmt.Errorf("--step-delay cannot be negative")
	}

	if c.OpenTimeout <= 0 || c.StepTimeout <= 0 || c.CloseTimeout <= 0 {
		return fmt.Errorf("--open-timeout, --step-timeout and --close-timeout must be positive")
	}

	if c.ReportURL != "" {
		u, err := url.Parse(c.ReportURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("--report-url must be an absolute http(s) URL")
		}
	}

	return nil
}

// Selected reports whether the scenario should run under the --scenarios filter.
func (c *Config) Selected(name string) bool {
	if len(c.Scenarios) == 0 {
		return true
	}
	for _, s := range c.Scenarios {
		if s == name {
			return true
		}
	}
	return false
}

// SimConfig configures the standalone simulator.
type SimConfig struct {
	ListenAddr  string
	Path        string
	NameHeader  string
	Seed        uint64
	LogLevel    int
	LogPath     string
	MetricsAddr string
}

func NewSimConfigFromFlags(fs *flag.FlagSet, args []string) (*SimConfig, error) {
	listenAddr := fs.String(
		"listen", "127.0.0.1:8080", "Address the simulator listens on")
	path := fs.String(
		"path", "/", "HTTP path of the websocket endpoint")
	nameHeader := fs.String(
		"name-header", "", "Handshake header naming each connection, empty to disable")
	seed := fs.Uint64(
		"seed", 0, "Seed for lobby codes and role assignment, 0 for random")
	logLevel := fs.Int(
		"log-level", 0, "Log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error")
	logPath := fs.String(
		"log-path", "", "Directory to the logs")
	metricsAddr := fs.String(
		"metrics-addr", "", "Serve Prometheus metrics on this address, empty to disable")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &SimConfig{
		ListenAddr:  *listenAddr,
		Path:        *path,
		NameHeader:  *nameHeader,
		Seed:        *seed,
		LogLevel:    *logLevel,
		LogPath:     *logPath,
		MetricsAddr: *metricsAddr,
	}, nil
}

func (c *SimConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("--listen is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("--path must start with '/'")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
