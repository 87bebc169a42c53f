package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StorageConfig is the remote storage section of the configuration, read
// from a YAML file. Missing credentials or bucket name fail validation
// before any upload I/O is attempted.
type StorageConfig struct {
	AWS struct {
		RegionName      string `yaml:"region_name" validate:"required"`
		AccessKeyID     string `yaml:"access_key_id" validate:"required"`
		SecretAccessKey string `yaml:"secret_access_key" validate:"required"`
	} `yaml:"aws"`
	S3 struct {
		BucketName  string `yaml:"bucket_name" validate:"required"`
		CleanPrefix string `yaml:"clean_prefix"`
	} `yaml:"s3"`
}

// LoadStorage reads and validates the remote storage config file.
func LoadStorage(path string) (*StorageConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}

	var cfg StorageConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config %q: %w", path, err)
	}

	if cfg.S3.CleanPrefix == "" {
		cfg.S3.CleanPrefix = "clean/"
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("incomplete storage config %q: %w", path, err)
	}

	return &cfg, nil
}
