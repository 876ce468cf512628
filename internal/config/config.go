// file: internal/config/config.go
// version: 1.0.0
// guid: 0c6e2a8f-4b1d-4e7a-9c5b-2f8d0a6e4c1b

package config

import (
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	DatabaseType string // "pebble" (default) or "sqlite"
	EnableSQLite bool   // Must be true to use SQLite (safety flag)

	// HTTP server
	Host string
	Port int

	// Blob storage for relayed cover images
	StorageBackend  string // "local" (default) or "s3"
	CoversDir       string
	PublicBaseURL   string
	S3Bucket        string
	S3PublicBaseURL string

	APIKeys struct {
		GoogleBooks string
	}
}

var AppConfig Config

// InitConfig initializes the application configuration
func InitConfig() {
	// Set defaults
	viper.SetDefault("database_type", "pebble")
	viper.SetDefault("enable_sqlite3_i_know_the_risks", false)
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8080)
	viper.SetDefault("storage_backend", "local")
	viper.SetDefault("covers_dir", "covers")

	AppConfig = Config{
		DatabasePath:    viper.GetString("database_path"),
		DatabaseType:    viper.GetString("database_type"),
		EnableSQLite:    viper.GetBool("enable_sqlite3_i_know_the_risks"),
		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		StorageBackend:  viper.GetString("storage_backend"),
		CoversDir:       viper.GetString("covers_dir"),
		PublicBaseURL:   viper.GetString("public_base_url"),
		S3Bucket:        viper.GetString("s3_bucket"),
		S3PublicBaseURL: viper.GetString("s3_public_base_url"),
	}

	// API Keys
	AppConfig.APIKeys.GoogleBooks = viper.GetString("api_keys.google_books")

	// Normalize database type
	if AppConfig.DatabaseType == "sqlite3" {
		AppConfig.DatabaseType = "sqlite"
	}
	if AppConfig.DatabaseType == "" {
		AppConfig.DatabaseType = "pebble"
	}
}
