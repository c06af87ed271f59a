package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	AppName     = "telegram-ebay-bot"
	EnvFileName = "config.env"
	ConfigFile  = "config.yaml"
)

// LoadEnvFile loads environment variables from .env in the working
// directory and from the config file in the user's config directory.
// Variables already set are kept. Errors are ignored since the files may
// not exist.
func LoadEnvFile() {
	_ = godotenv.Load(".env")
	if dir := Dir(); dir != "" {
		_ = godotenv.Load(filepath.Join(dir, EnvFileName))
	}
}

// Dir returns the bot's directory under the user config dir, or "" when
// there is none.
func Dir() string {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configBase, AppName)
}

// DefaultPath returns the config.yaml path: CONFIG_PATH when set, else
// config.yaml in the bot's config directory.
func DefaultPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if dir := Dir(); dir != "" {
		return filepath.Join(dir, ConfigFile)
	}
	return ConfigFile
}
