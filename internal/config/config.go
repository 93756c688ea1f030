package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
	Pose      PoseConfig      `yaml:"pose"`
	Exercises ExercisesConfig `yaml:"exercises"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig bounds each streaming session.
type SessionConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds"`
	MaxFrameBytes  int64 `yaml:"max_frame_bytes"`
	MaxFramePixels int   `yaml:"max_frame_pixels"`
	JPEGQuality    int   `yaml:"jpeg_quality"`
}

// PoseConfig locates the pose estimation sidecar.
type PoseConfig struct {
	EstimatorURL          string  `yaml:"estimator_url"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MinVisibility         float64 `yaml:"min_visibility"`
}

// ExercisesConfig controls which definitions are loaded and exposed on the stream.
type ExercisesConfig struct {
	DefinitionsFile string   `yaml:"definitions_file"`
	Streaming       []string `yaml:"streaming"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Timeout returns the session budget.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request sidecar timeout.
func (p PoseConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A .env file in the working directory is loaded into the environment first, if present.
// Env vars use the prefix POSEREPS_ and underscore-separated paths:
//
//	POSEREPS_SERVER_HOST, POSEREPS_SERVER_PORT,
//	POSEREPS_DB_HOST, POSEREPS_DB_PORT, POSEREPS_DB_NAME,
//	POSEREPS_DB_USER, POSEREPS_DB_PASSWORD, POSEREPS_DB_SSLMODE,
//	POSEREPS_AUTH_API_KEY,
//	POSEREPS_SESSION_TIMEOUT_SECONDS, POSEREPS_POSE_ESTIMATOR_URL,
//	POSEREPS_EXERCISES_STREAMING (comma separated)
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSEREPS_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("POSEREPS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("POSEREPS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("POSEREPS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("POSEREPS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("POSEREPS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("POSEREPS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("POSEREPS_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("POSEREPS_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("POSEREPS_SESSION_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("POSEREPS_POSE_ESTIMATOR_URL"); v != "" {
		cfg.Pose.EstimatorURL = v
	}
	if v := os.Getenv("POSEREPS_EXERCISES_STREAMING"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Exercises.Streaming = ids
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = 30
	}
	if cfg.Session.MaxFrameBytes == 0 {
		cfg.Session.MaxFrameBytes = 4 << 20
	}
	if cfg.Session.MaxFramePixels == 0 {
		cfg.Session.MaxFramePixels = 4096 * 4096
	}
	if cfg.Session.JPEGQuality == 0 {
		cfg.Session.JPEGQuality = 80
	}
	if cfg.Pose.RequestTimeoutSeconds == 0 {
		cfg.Pose.RequestTimeoutSeconds = 5
	}
	if cfg.Pose.MinVisibility == 0 {
		cfg.Pose.MinVisibility = 0.5
	}
	if cfg.Exercises.Streaming == nil {
		cfg.Exercises.Streaming = []string{"curl", "lateral_raise"}
	}
	if cfg.Tailscale.Enabled && cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "posereps"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Pose.EstimatorURL == "" {
		return fmt.Errorf("pose.estimator_url is required")
	}
	if c.Session.TimeoutSeconds < 0 {
		return fmt.Errorf("session.timeout_seconds must be positive")
	}
	if c.Session.MaxFramePixels < 0 {
		return fmt.Errorf("session.max_frame_pixels must be positive")
	}
	if c.Session.JPEGQuality < 1 || c.Session.JPEGQuality > 100 {
		return fmt.Errorf("session.jpeg_quality must be between 1 and 100")
	}
	if c.Pose.MinVisibility < 0 || c.Pose.MinVisibility > 1 {
		return fmt.Errorf("pose.min_visibility must be between 0 and 1")
	}
	return nil
}
