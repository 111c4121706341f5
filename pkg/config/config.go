package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/inheritance10/sumbench/pkg/logflags"
)

const (
	configDir  string = ".sumbench"
	configFile string = "config.yml"
)

// MongoConfig describes where benchmark runs are recorded.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	MaxPoolSize    uint64        `yaml:"max-pool-size"`
	ConnectTimeout time.Duration `yaml:"connect-timeout"`
}

// ServerConfig configures the demo HTTP service.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// CPUBound is the upper bound of the sum computed by /cpu.
	CPUBound  int64         `yaml:"cpu-bound"`
	PingDelay time.Duration `yaml:"ping-delay"`
	JobDelay  time.Duration `yaml:"job-delay"`
}

// Config defines all configuration options available to be set through the config file.
// None of them change what the benchmark itself computes.
type Config struct {
	Mongo  MongoConfig  `yaml:"mongo"`
	Server ServerConfig `yaml:"server"`

	// ResultsFile, when set, receives a copy of every report.
	ResultsFile string `yaml:"results-file,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "perfdb",
			Collection:     "sumbench_runs",
			MaxPoolSize:    100,
			ConnectTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Listen:    "127.0.0.1:4000",
			CPUBound:  50_000_000,
			PingDelay: 10 * time.Millisecond,
			JobDelay:  2 * time.Second,
		},
	}
}

// LoadConfig reads the config file at path, or the one under the user's
// home directory when path is empty. A missing file yields Default().
// Keys absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	log := logflags.ConfigLogger()
	if path == "" {
		var err error
		path, err = GetConfigFilePath(configFile)
		if err != nil {
			return nil, err
		}
	}

	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("no config file at %s, using defaults", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unable to decode config file %s: %w", path, err)
	}
	log.Debugf("loaded config from %s", path)
	return c, nil
}

// SaveConfig will marshal and save the config struct to path.
func SaveConfig(conf *Config, path string) error {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

// WriteDefault writes a commented default config file to path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(defaultConfig)
	return err
}

const defaultConfig = `# Configuration file for sumbench.
# The benchmark always sums 1..100000000; these options only affect
# where results go and how the demo service behaves.

# Runs saved with --record and listed by 'sumbench history'.
mongo:
  uri: mongodb://localhost:27017
  database: perfdb
  collection: sumbench_runs
  max-pool-size: 100
  connect-timeout: 10s

# 'sumbench serve' endpoints: /cpu, /ping, /job, /sum.
server:
  listen: "127.0.0.1:4000"
  cpu-bound: 50000000
  ping-delay: 10ms
  job-delay: 2s

# Uncomment to keep a copy of every report.
# results-file: sumbench_results.txt
`

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDir, file), nil
}
