// Package config handles linkbench configuration via YAML files, .env files
// and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--link-count, --backends, etc.)
//  2. Environment variables
//  3. Config file (linkbench.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	fmt.Printf("Neo4j: %s as %s\n", cfg.Neo4j.URI, cfg.Neo4j.User)
//
// Environment Variables:
//
// Remote backend (same names as the Neo4j tooling):
//   - NEO4J_URI="bolt://localhost:7687"
//   - NEO4J_USER="neo4j"
//   - NEO4J_PASSWORD="password"
//   - NEO4J_DATABASE="neo4j"
//   - NEO4J_BOLT_URI="" (enables the Bolt driver backend when set)
//
// Benchmark:
//   - BENCHMARK_LINK_COUNT=1000
//   - BENCHMARK_BACKGROUND_LINKS=3000
//   - LINKBENCH_ITERATIONS=10
//   - LINKBENCH_GROUPS="Create,Each_All"
//   - LINKBENCH_BACKENDS="Doublets_United_Volatile,Neo4j_NonTransaction"
//
// Storage, logging and reporting:
//   - LINKBENCH_DATA_DIR="."
//   - LINKBENCH_LOG_LEVEL=0
//   - LINKBENCH_FORMAT="table"
//   - LINKBENCH_METRICS_FILE=""
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all linkbench configuration.
type Config struct {
	Neo4j     Neo4jConfig
	Benchmark BenchmarkConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Report    ReportConfig
}

// Neo4jConfig holds the remote backend connection settings.
type Neo4jConfig struct {
	// URI of the server. bolt:// URIs are accepted and mapped to the HTTP
	// port by the hand-built client.
	URI      string
	User     string
	Password string
	Database string

	// BoltURI enables the Bolt driver backend when not empty.
	BoltURI string
}

// BenchmarkConfig sizes and selects the benchmarks.
type BenchmarkConfig struct {
	LinkCount  int
	Background int
	Iterations int

	// Groups and Backends restrict the run; empty means all.
	Groups   []string
	Backends []string
}

// StorageConfig holds local backend settings.
type StorageConfig struct {
	// DataDir receives the mapped files and the badger directory.
	DataDir string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the logr verbosity; 0 logs errors and info, higher is chattier.
	Level int
}

// ReportConfig holds result output settings.
type ReportConfig struct {
	Format      string
	MetricsFile string
}

// LoadDefaults returns the built-in configuration.
func LoadDefaults() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Password: "password",
			Database: "neo4j",
		},
		Benchmark: BenchmarkConfig{
			LinkCount:  1000,
			Background: 3000,
			Iterations: 10,
		},
		Storage: StorageConfig{DataDir: "."},
		Report:  ReportConfig{Format: "table"},
	}
}

// LoadFromEnv loads the defaults overridden by environment variables.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	applyEnvVars(cfg)
	return cfg
}

func applyEnvVars(cfg *Config) {
	cfg.Neo4j.URI = getEnv("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = getEnv("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = getEnv("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = getEnv("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.Neo4j.BoltURI = getEnv("NEO4J_BOLT_URI", cfg.Neo4j.BoltURI)

	cfg.Benchmark.LinkCount = getEnvInt("BENCHMARK_LINK_COUNT", cfg.Benchmark.LinkCount)
	cfg.Benchmark.Background = getEnvInt("BENCHMARK_BACKGROUND_LINKS", cfg.Benchmark.Background)
	cfg.Benchmark.Iterations = getEnvInt("LINKBENCH_ITERATIONS", cfg.Benchmark.Iterations)
	cfg.Benchmark.Groups = getEnvStringSlice("LINKBENCH_GROUPS", cfg.Benchmark.Groups)
	cfg.Benchmark.Backends = getEnvStringSlice("LINKBENCH_BACKENDS", cfg.Benchmark.Backends)

	cfg.Storage.DataDir = getEnv("LINKBENCH_DATA_DIR", cfg.Storage.DataDir)
	cfg.Logging.Level = getEnvInt("LINKBENCH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Report.Format = getEnv("LINKBENCH_FORMAT", cfg.Report.Format)
	cfg.Report.MetricsFile = getEnv("LINKBENCH_METRICS_FILE", cfg.Report.MetricsFile)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. With no
// paths it loads ./.env if present.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	Neo4j struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		BoltURI  string `yaml:"bolt_uri"`
	} `yaml:"neo4j"`

	Benchmark struct {
		LinkCount  int      `yaml:"link_count"`
		Background int      `yaml:"background_links"`
		Iterations int      `yaml:"iterations"`
		Groups     []string `yaml:"groups"`
		Backends   []string `yaml:"backends"`
	} `yaml:"benchmark"`

	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Logging struct {
		Level int `yaml:"level"`
	} `yaml:"logging"`

	Report struct {
		Format      string `yaml:"format"`
		MetricsFile string `yaml:"metrics_file"`
	} `yaml:"report"`
}

// LoadFromFile loads defaults, then the YAML file at configPath, then
// environment overrides. A missing file or an empty path is not an error.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()
	if configPath == "" {
		applyEnvVars(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnvVars(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Neo4j ===
	if y.Neo4j.URI != "" {
		cfg.Neo4j.URI = y.Neo4j.URI
	}
	if y.Neo4j.User != "" {
		cfg.Neo4j.User = y.Neo4j.User
	}
	if y.Neo4j.Password != "" {
		cfg.Neo4j.Password = y.Neo4j.Password
	}
	if y.Neo4j.Database != "" {
		cfg.Neo4j.Database = y.Neo4j.Database
	}
	if y.Neo4j.BoltURI != "" {
		cfg.Neo4j.BoltURI = y.Neo4j.BoltURI
	}

	// === Benchmark ===
	if y.Benchmark.LinkCount > 0 {
		cfg.Benchmark.LinkCount = y.Benchmark.LinkCount
	}
	if y.Benchmark.Background > 0 {
		cfg.Benchmark.Background = y.Benchmark.Background
	}
	if y.Benchmark.Iterations > 0 {
		cfg.Benchmark.Iterations = y.Benchmark.Iterations
	}
	if len(y.Benchmark.Groups) > 0 {
		cfg.Benchmark.Groups = y.Benchmark.Groups
	}
	if len(y.Benchmark.Backends) > 0 {
		cfg.Benchmark.Backends = y.Benchmark.Backends
	}

	// === Storage, logging, report ===
	if y.Storage.DataDir != "" {
		cfg.Storage.DataDir = y.Storage.DataDir
	}
	if y.Logging.Level > 0 {
		cfg.Logging.Level = y.Logging.Level
	}
	if y.Report.Format != "" {
		cfg.Report.Format = y.Report.Format
	}
	if y.Report.MetricsFile != "" {
		cfg.Report.MetricsFile = y.Report.MetricsFile
	}

	applyEnvVars(cfg)
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Benchmark.LinkCount <= 0 {
		return fmt.Errorf("invalid link count: %d", c.Benchmark.LinkCount)
	}
	if c.Benchmark.Background <= 0 {
		return fmt.Errorf("invalid background link count: %d", c.Benchmark.Background)
	}
	if c.Benchmark.Iterations <= 0 {
		return fmt.Errorf("invalid iteration count: %d", c.Benchmark.Iterations)
	}
	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j uri must not be empty")
	}
	if c.Neo4j.Database == "" {
		return fmt.Errorf("neo4j database must not be empty")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.Logging.Level < 0 {
		return fmt.Errorf("invalid log level: %d", c.Logging.Level)
	}
	return nil
}

// String returns a representation safe for logging; the password is omitted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Neo4j: %s@%s/%s, Bolt: %q, Links: %d, Background: %d, Iterations: %d, DataDir: %s}",
		c.Neo4j.User, c.Neo4j.URI, c.Neo4j.Database, c.Neo4j.BoltURI,
		c.Benchmark.LinkCount, c.Benchmark.Background, c.Benchmark.Iterations,
		c.Storage.DataDir,
	)
}

// FindConfigFile searches for a config file in standard locations and returns
// the first one found, or an empty string.
// Search order:
//  1. ~/.linkbench/config.yaml
//  2. Current working directory (linkbench.yaml, config.yaml)
//  3. ~/.config/linkbench/config.yaml
func FindConfigFile() string {
	var candidates []string
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".linkbench", "config.yaml"))
	}
	candidates = append(candidates, "linkbench.yaml", "config.yaml")
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "linkbench", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
