package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError is returned for unreadable or invalid configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets secrets be written as ${ENV_VAR} in the file.
func expandSensitiveFields(cfg *Config) {
	cfg.Telegram.Token = expandEnvVars(cfg.Telegram.Token)
	cfg.Gemini.APIKey = expandEnvVars(cfg.Gemini.APIKey)
	cfg.Ebay.ClientID = expandEnvVars(cfg.Ebay.ClientID)
	cfg.Ebay.ClientSecret = expandEnvVars(cfg.Ebay.ClientSecret)
	cfg.Ebay.RefreshToken = expandEnvVars(cfg.Ebay.RefreshToken)
	cfg.ImageHost.Cloudinary.APIKey = expandEnvVars(cfg.ImageHost.Cloudinary.APIKey)
	cfg.ImageHost.Cloudinary.APISecret = expandEnvVars(cfg.ImageHost.Cloudinary.APISecret)
	cfg.Storage.TokenKey = expandEnvVars(cfg.Storage.TokenKey)
}

// Load reads the config file, applies environment overrides, and returns
// the merged Config. A missing file produces defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(cfg)
	expandSensitiveFields(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyDefaults refills fields the file set to empty values.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = d.Gemini.Model
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = d.Gemini.Timeout
	}
	if cfg.Ebay.APIBaseURL == "" {
		cfg.Ebay.APIBaseURL = d.Ebay.APIBaseURL
	}
	if cfg.Ebay.AuthURL == "" {
		cfg.Ebay.AuthURL = d.Ebay.AuthURL
	}
	if cfg.Ebay.TokenURL == "" {
		cfg.Ebay.TokenURL = d.Ebay.TokenURL
	}
	if cfg.Ebay.CategoryTreeID == "" {
		cfg.Ebay.CategoryTreeID = d.Ebay.CategoryTreeID
	}
	if cfg.Ebay.CategoryCacheTTL == 0 {
		cfg.Ebay.CategoryCacheTTL = d.Ebay.CategoryCacheTTL
	}
	if cfg.ImageHost.Backend == "" {
		cfg.ImageHost.Backend = d.ImageHost.Backend
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = d.Storage.DBPath
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
}

// applyEnvOverrides lets environment variables win over the file.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"BOT_TOKEN", &cfg.Telegram.Token},
		{"GEMINI_API_KEY", &cfg.Gemini.APIKey},
		{"GEMINI_MODEL", &cfg.Gemini.Model},
		{"EBAY_CLIENT_ID", &cfg.Ebay.ClientID},
		{"EBAY_CLIENT_SECRET", &cfg.Ebay.ClientSecret},
		{"EBAY_RU_NAME", &cfg.Ebay.RuName},
		{"EBAY_REFRESH_TOKEN", &cfg.Ebay.RefreshToken},
		{"EBAY_CALLBACK_STATE", &cfg.Ebay.CallbackState},
		{"TOKEN_KEY", &cfg.Storage.TokenKey},
		{"DB_PATH", &cfg.Storage.DBPath},
		{"HTTP_ADDR", &cfg.Server.Addr},
		{"IMAGE_HOST", &cfg.ImageHost.Backend},
		{"CLOUDINARY_CLOUD_NAME", &cfg.ImageHost.Cloudinary.CloudName},
		{"CLOUDINARY_API_KEY", &cfg.ImageHost.Cloudinary.APIKey},
		{"CLOUDINARY_API_SECRET", &cfg.ImageHost.Cloudinary.APISecret},
		{"S3_BUCKET", &cfg.ImageHost.S3.Bucket},
		{"S3_PUBLIC_BASE_URL", &cfg.ImageHost.S3.PublicBaseURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminID = id
		}
	}
}

// MissingRequired returns the environment variable names of required
// settings that are still empty.
func (c *Config) MissingRequired() []string {
	required := []struct {
		name  string
		value string
	}{
		{"BOT_TOKEN", c.Telegram.Token},
		{"GEMINI_API_KEY", c.Gemini.APIKey},
		{"EBAY_CLIENT_ID", c.Ebay.ClientID},
		{"EBAY_CLIENT_SECRET", c.Ebay.ClientSecret},
		{"EBAY_RU_NAME", c.Ebay.RuName},
		{"TOKEN_KEY", c.Storage.TokenKey},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if c.Telegram.AdminID == 0 {
		missing = append(missing, "ADMIN_TELEGRAM_ID")
	}
	return missing
}

// Validate checks required settings and the image host selection.
func (c *Config) Validate() error {
	if missing := c.MissingRequired(); len(missing) > 0 {
		return &ConfigError{Message: "missing required config: " + strings.Join(missing, ", ")}
	}
	switch c.ImageHost.Backend {
	case ImageHostCloudinary:
		h := c.ImageHost.Cloudinary
		if h.CloudName == "" || h.APIKey == "" || h.APISecret == "" {
			return &ConfigError{Message: "cloudinary image host needs cloud_name, api_key and api_secret"}
		}
	case ImageHostS3:
		if c.ImageHost.S3.Bucket == "" {
			return &ConfigError{Message: "s3 image host needs a bucket"}
		}
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown image host backend %q", c.ImageHost.Backend)}
	}
	return nil
}
