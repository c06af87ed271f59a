package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
)

var overrideVars = []string{
	"BOT_TOKEN", "GEMINI_API_KEY", "GEMINI_MODEL", "EBAY_CLIENT_ID", "EBAY_CLIENT_SECRET",
	"EBAY_RU_NAME", "EBAY_REFRESH_TOKEN", "EBAY_CALLBACK_STATE", "TOKEN_KEY", "DB_PATH",
	"HTTP_ADDR", "IMAGE_HOST", "CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY",
	"CLOUDINARY_API_SECRET", "S3_BUCKET", "S3_PUBLIC_BASE_URL", "LOG_LEVEL", "ADMIN_TELEGRAM_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range overrideVars {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, ebay.CategoryTreeIT, cfg.Ebay.CategoryTreeID)
	assert.Equal(t, "EUR", cfg.Ebay.Currency)
	assert.Equal(t, ImageHostCloudinary, cfg.ImageHost.Backend)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_GEMINI_KEY", "from-env")

	path := writeConfig(t, `
telegram:
  token: tg-token
  admin_id: 42
gemini:
  api_key: ${MY_GEMINI_KEY}
  timeout: 45s
ebay:
  client_id: app
  client_secret: ${UNSET_SECRET_VAR}
  ru_name: Seller-App-RuName
  api_base_url: ""
shipping:
  bands:
    - {class: XS, max_kg: 0.5}
    - {class: S, max_kg: 2}
  overflow_class: L
  default_class: S
  policies:
    XS: "111"
  default_policy: "999"
profiles:
  default: generic
  custom:
    - id: books
      name: Books
      fields:
        - {key: title_hint, prompt: "Book title?"}
      template: generic
image_host:
  backend: s3
  s3:
    bucket: photos
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, "from-env", cfg.Gemini.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, "${UNSET_SECRET_VAR}", cfg.Ebay.ClientSecret)
	assert.Equal(t, ebay.APIBaseURL, cfg.Ebay.APIBaseURL, "empty values fall back to defaults")
	assert.Equal(t, []shipping.Band{{Class: shipping.ClassXS, MaxKg: 0.5}, {Class: shipping.ClassS, MaxKg: 2}}, cfg.Shipping.Bands)
	assert.Equal(t, "111", cfg.Shipping.Policies[shipping.ClassXS])
	assert.Equal(t, "999", cfg.PublisherConfig().DefaultFulfillmentPolicyID)
	assert.Equal(t, listing.ProfileGeneric, cfg.Profiles.Default)
	require.Len(t, cfg.Profiles.Custom, 1)
	assert.Equal(t, "Book title?", cfg.Profiles.Custom[0].Fields[0].Prompt)
	assert.Equal(t, ImageHostS3, cfg.ImageHost.Backend)
	assert.Equal(t, "listings/", cfg.ImageHost.S3.Prefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("ADMIN_TELEGRAM_ID", "7")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")

	path := writeConfig(t, "telegram:\n  token: file-token\n  admin_id: 42\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "telegram: [unclosed")

	_, err := Load(path)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "failed to parse config")
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Telegram.Token = "t"
	cfg.Telegram.AdminID = 1
	cfg.Gemini.APIKey = "g"
	cfg.Ebay.ClientID = "id"
	cfg.Ebay.ClientSecret = "secret"
	cfg.Ebay.RuName = "ru"
	cfg.Storage.TokenKey = "key"
	cfg.ImageHost.Cloudinary = CloudinaryConfig{CloudName: "c", APIKey: "k", APISecret: "s"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing secrets", func(c *Config) {
			c.Gemini.APIKey = ""
			c.Storage.TokenKey = ""
			c.Telegram.AdminID = 0
		}, "missing required config: GEMINI_API_KEY, TOKEN_KEY, ADMIN_TELEGRAM_ID"},
		{"cloudinary incomplete", func(c *Config) { c.ImageHost.Cloudinary.APISecret = "" }, "cloudinary image host"},
		{"s3 without bucket", func(c *Config) { c.ImageHost.Backend = ImageHostS3 }, "s3 image host needs a bucket"},
		{"unknown backend", func(c *Config) { c.ImageHost.Backend = "ftp" }, `unknown image host backend "ftp"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfileList_CustomReplacesBuiltin(t *testing.T) {
	cfg := Defaults()
	cfg.Profiles.Custom = []listing.Profile{
		{ID: listing.ProfileGeneric, Name: "My generic"},
		{ID: "books", Name: "Books"},
	}

	profiles := cfg.ProfileList()

	var ids []string
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{listing.ProfileMotoPart, listing.ProfileGeneric, "books"}, ids)
	assert.Equal(t, "My generic", profiles[1].Name)
}

func TestDefaultPath_UsesEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/bot/config.yaml")
	assert.Equal(t, "/etc/bot/config.yaml", DefaultPath())
}
