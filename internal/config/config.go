package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Mode string `yaml:"mode"`
		TLS  struct {
			Enabled  bool   `yaml:"enabled"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Mongo struct {
		URI         string        `yaml:"uri"`
		Database    string        `yaml:"database"`
		MaxPoolSize uint64        `yaml:"max_pool_size"`
		MinPoolSize uint64        `yaml:"min_pool_size"`
		Timeout     time.Duration `yaml:"timeout"`
		TLS         struct {
			Enabled  bool   `yaml:"enabled"`
			CAFile   string `yaml:"ca_file"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"mongo"`

	Archive struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"archive"`

	Elasticsearch struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"elasticsearch"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
}

func Load() (*Config, error) {
	// Look for config in multiple locations.
	configPaths := []string{
		"./configs/config.yaml",
		"../configs/config.yaml",
		"/etc/swasthyasetu/config.yaml",
	}

	var config Config
	for _, path := range configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		configFile, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}

		if err := yaml.Unmarshal(configFile, &config); err != nil {
			return nil, err
		}

		applyEnvOverrides(&config)
		return &config, nil
	}

	return nil, fmt.Errorf("no configuration file found")
}

// applyEnvOverrides lets deployments inject secrets without writing
// them into the config file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MONGO_URI"); v != "" {
		config.Mongo.URI = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("ARCHIVE_PASSWORD"); v != "" {
		config.Archive.Password = v
	}
	if v := os.Getenv("ELASTICSEARCH_PASSWORD"); v != "" {
		config.Elasticsearch.Password = v
	}
}
