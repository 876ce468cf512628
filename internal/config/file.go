// file: internal/config/file.go
// version: 1.0.0
// guid: 2e8a4c0d-6f3b-4a9e-b7d5-0c4f2e8a6b3d

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFilePath returns the path to the YAML config file next to the database.
func ConfigFilePath() string {
	if AppConfig.DatabasePath != "" {
		return filepath.Join(filepath.Dir(AppConfig.DatabasePath), "config.yaml")
	}
	return ""
}

// LoadConfigFromFile fills configuration gaps from the YAML config file.
// Flags and environment take priority; file values only apply where the
// current value is still empty.
func LoadConfigFromFile() error {
	path := ConfigFilePath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig map[string]any
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		log.Printf("[WARN] Failed to parse config file %s: %v", path, err)
		return nil
	}

	applied := 0
	stringFallbacks := map[string]*string{
		"public_base_url":      &AppConfig.PublicBaseURL,
		"s3_bucket":            &AppConfig.S3Bucket,
		"s3_public_base_url":   &AppConfig.S3PublicBaseURL,
		"google_books_api_key": &AppConfig.APIKeys.GoogleBooks,
	}
	for key, ptr := range stringFallbacks {
		if *ptr == "" {
			if val, ok := fileConfig[key].(string); ok && val != "" {
				*ptr = val
				applied++
				log.Printf("[INFO] Loaded %s from config file", key)
			}
		}
	}

	if applied > 0 {
		log.Printf("[INFO] Applied %d settings from %s", applied, path)
	}
	return nil
}

// SaveConfigToFile writes the shareable settings to the YAML config file so
// a fresh database starts with the same setup.
func SaveConfigToFile() error {
	path := ConfigFilePath()
	if path == "" {
		return nil
	}

	fileConfig := map[string]any{
		"database_type":        AppConfig.DatabaseType,
		"storage_backend":      AppConfig.StorageBackend,
		"covers_dir":           AppConfig.CoversDir,
		"public_base_url":      AppConfig.PublicBaseURL,
		"s3_bucket":            AppConfig.S3Bucket,
		"s3_public_base_url":   AppConfig.S3PublicBaseURL,
		"google_books_api_key": AppConfig.APIKeys.GoogleBooks,
	}

	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
