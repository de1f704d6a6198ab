package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
)

type Config struct {
	Listen        string        `json:"listen"` // eg ":8000"
	DB            dbh.DBConfig  `json:"db"`
	Storage       StorageConfig `json:"storage"`
	MaxUploadMB   int           `json:"maxUploadMB"`   // Largest accepted alert body
	SummaryLimit  int           `json:"summaryLimit"`  // Number of alerts returned by the summaries endpoint
	RequestsPerIP int           `json:"requestsPerIP"` // Alert creations per IP per minute
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Prepended to every object name, eg "alertsink/"
}

func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8000",
		DB:            dbh.MakeSqliteConfig("alertsink.sqlite"),
		Storage:       StorageConfig{Filesystem: &StorageConfigFS{Root: "alertsink-media"}},
		MaxUploadMB:   256,
		SummaryLimit:  10,
		RequestsPerIP: 120,
	}
}

// LoadConfig reads a JSON config file on top of the defaults.
// If filename is empty, the defaults are returned.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
	}
	return cfg, nil
}
