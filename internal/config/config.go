// Package config loads calibration and server settings from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/mcmc"
	"github.com/soaringjerry/synapirt/internal/services"
	"github.com/soaringjerry/synapirt/internal/utils"
	"github.com/soaringjerry/synapirt/internal/vi"
)

// Config represents the complete synapirt configuration
type Config struct {
	Model       ModelConfig   `yaml:"model"`
	Variational []Pass        `yaml:"variational"`
	MCMC        MCMCConfig    `yaml:"mcmc"`
	Scoring     ScoringConfig `yaml:"scoring"`
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Log         LogConfig     `yaml:"log"`
}

// ModelConfig selects the response model variant
type ModelConfig struct {
	// Family is "graded" or "binary"
	Family     string `yaml:"family"`
	Dimensions int    `yaml:"dimensions"`
	// Categories is K; 0 infers it from the data
	Categories int  `yaml:"categories"`
	Auxiliary  bool `yaml:"auxiliary"`
	// Weighting is "power" or "linear"
	Weighting        string  `yaml:"weighting"`
	WeightExponent   float64 `yaml:"weight_exponent"`
	DimensionalDecay float64 `yaml:"dimensional_decay"`
	MinCompleteRows  int     `yaml:"min_complete_rows"`
}

// Pass is one variational pass. Keys left out of a YAML entry keep
// their default values.
type Pass vi.Config

func (p *Pass) UnmarshalYAML(node *yaml.Node) error {
	cfg := vi.DefaultConfig()
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	*p = Pass(cfg)
	return nil
}

// MCMCConfig configures the optional HMC refinement
type MCMCConfig struct {
	Enabled     bool `yaml:"enabled"`
	mcmc.Config `yaml:",inline"`
}

// ScoringConfig configures importance-sampling scoring and the RNG seed
type ScoringConfig struct {
	Draws int    `yaml:"draws"`
	Seed  uint64 `yaml:"seed"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// AdminEmail and AdminPassword seed an analyst account on startup
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// StorageConfig configures the sqlite database
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `yaml:"migrations_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	model := grm.DefaultConfig()
	first := vi.DefaultConfig()
	second := vi.DefaultConfig()
	second.LearningRate = 1e-2
	return &Config{
		Model: ModelConfig{
			Family:           grm.FamilyGraded.String(),
			Dimensions:       model.Dimensions,
			Auxiliary:        model.Auxiliary,
			Weighting:        "power",
			WeightExponent:   1,
			DimensionalDecay: model.DimensionalDecay,
			MinCompleteRows:  model.MinCompleteRows,
		},
		Variational: []Pass{Pass(first), Pass(second)},
		MCMC:        MCMCConfig{Config: mcmc.DefaultConfig()},
		Scoring:     ScoringConfig{Draws: grm.DefaultDraws, Seed: 1},
		Server: ServerConfig{
			Addr:     ":8080",
			TokenTTL: 12 * time.Hour,
		},
		Storage: StorageConfig{SQLitePath: "data/synapirt.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads path when it is non-empty, then applies the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from SYNAPIRT_* variables.
func (c *Config) ApplyEnv() {
	c.Server.Addr = utils.SafeEnv("SYNAPIRT_ADDR", c.Server.Addr)
	c.Server.JWTSecret = utils.SafeEnv("SYNAPIRT_JWT_SECRET", c.Server.JWTSecret)
	c.Server.TokenTTL = utils.EnvDuration("SYNAPIRT_TOKEN_TTL", c.Server.TokenTTL)
	c.Server.AllowedOrigins = utils.EnvList("SYNAPIRT_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.AdminEmail = utils.SafeEnv("SYNAPIRT_ADMIN_EMAIL", c.Server.AdminEmail)
	c.Server.AdminPassword = utils.SafeEnv("SYNAPIRT_ADMIN_PASSWORD", c.Server.AdminPassword)
	c.Storage.SQLitePath = utils.SafeEnv("SYNAPIRT_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MigrationsDir = utils.SafeEnv("SYNAPIRT_MIGRATIONS_DIR", c.Storage.MigrationsDir)
	c.Log.Level = utils.SafeEnv("SYNAPIRT_LOG_LEVEL", c.Log.Level)
	c.Scoring.Draws = utils.EnvInt("SYNAPIRT_DRAWS", c.Scoring.Draws)
	c.MCMC.Enabled = utils.EnvBool("SYNAPIRT_MCMC", c.MCMC.Enabled)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Schedule(); err != nil {
		return err
	}
	if c.Scoring.Draws < 1 {
		return fmt.Errorf("scoring.draws must be positive")
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("server.token_ttl must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// GRM converts the model section.
func (c *Config) GRM() (grm.Family, grm.Config, error) {
	family, err := grm.ParseFamily(c.Model.Family)
	if err != nil {
		return 0, grm.Config{}, fmt.Errorf("model.family: %w", err)
	}
	w, err := grm.ParseWeighting(c.Model.Weighting, c.Model.WeightExponent)
	if err != nil {
		return 0, grm.Config{}, fmt.Errorf("model.weighting: %w", err)
	}
	m := grm.Config{
		Dimensions:       c.Model.Dimensions,
		Categories:       c.Model.Categories,
		Auxiliary:        c.Model.Auxiliary,
		Weighting:        w,
		DimensionalDecay: c.Model.DimensionalDecay,
		MinCompleteRows:  c.Model.MinCompleteRows,
	}
	if err := m.Validate(); err != nil {
		return 0, grm.Config{}, fmt.Errorf("model: %w", err)
	}
	return family, m, nil
}

// Schedule builds the calibration recipe described by the config.
func (c *Config) Schedule() (services.Schedule, error) {
	family, model, err := c.GRM()
	if err != nil {
		return services.Schedule{}, err
	}
	if len(c.Variational) == 0 {
		return services.Schedule{}, fmt.Errorf("variational: at least one pass is required")
	}
	sched := services.Schedule{
		Family: family,
		Model:  model,
		Draws:  c.Scoring.Draws,
		Seed:   c.Scoring.Seed,
	}
	for i, p := range c.Variational {
		pass := vi.Config(p)
		if err := pass.Validate(); err != nil {
			return services.Schedule{}, fmt.Errorf("variational[%d]: %w", i, err)
		}
		sched.Passes = append(sched.Passes, pass)
	}
	if c.MCMC.Enabled {
		m := c.MCMC.Config
		if err := m.Validate(); err != nil {
			return services.Schedule{}, err
		}
		sched.MCMC = &m
	}
	return sched, nil
}
