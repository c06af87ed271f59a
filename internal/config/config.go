package config

import (
	"time"

	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
)

// Image host backends.
const (
	ImageHostCloudinary = "cloudinary"
	ImageHostS3         = "s3"
)

// Config is the complete bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Ebay      EbayConfig      `yaml:"ebay"`
	Shipping  shipping.Config `yaml:"shipping"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	ImageHost ImageHostConfig `yaml:"image_host"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	AdminID int64  `yaml:"admin_id"`
}

type GeminiConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EbayConfig holds the OAuth application and the seller's business policies.
type EbayConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	RuName        string `yaml:"ru_name"`
	RefreshToken  string `yaml:"refresh_token"`
	APIBaseURL    string `yaml:"api_base_url"`
	AuthURL       string `yaml:"auth_url"`
	TokenURL      string `yaml:"token_url"`
	CallbackState string `yaml:"callback_state"`

	MarketplaceID        string        `yaml:"marketplace_id"`
	CategoryTreeID       string        `yaml:"category_tree_id"`
	CategoryCacheTTL     time.Duration `yaml:"category_cache_ttl"`
	Currency             string        `yaml:"currency"`
	DefaultCategoryID    string        `yaml:"default_category_id"`
	PaymentPolicyID      string        `yaml:"payment_policy_id"`
	ReturnPolicyID       string        `yaml:"return_policy_id"`
	MerchantLocationKey  string        `yaml:"merchant_location_key"`
	Condition            string        `yaml:"condition"`
	ConditionDescription string        `yaml:"condition_description"`
}

// ProfilesConfig adds profiles and description templates on top of the
// built-in ones.
type ProfilesConfig struct {
	Default   string            `yaml:"default"`
	Custom    []listing.Profile `yaml:"custom"`
	Templates map[string]string `yaml:"templates"`
}

type ImageHostConfig struct {
	Backend    string           `yaml:"backend"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	S3         S3Config         `yaml:"s3"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type S3Config struct {
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

type StorageConfig struct {
	DBPath   string `yaml:"db_path"`
	TokenKey string `yaml:"token_key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Defaults returns a Config with the production defaults for eBay Italy.
func Defaults() *Config {
	pub := ebay.DefaultPublisherConfig()
	return &Config{
		Gemini: GeminiConfig{
			Model:   llm.DefaultGeminiModel,
			Timeout: 30 * time.Second,
		},
		Ebay: EbayConfig{
			APIBaseURL:           ebay.APIBaseURL,
			AuthURL:              ebay.AuthURL,
			TokenURL:             ebay.TokenURL,
			MarketplaceID:        pub.MarketplaceID,
			CategoryTreeID:       ebay.CategoryTreeIT,
			CategoryCacheTTL:     ebay.DefaultCategoryTTL,
			Currency:             pub.Currency,
			DefaultCategoryID:    pub.DefaultCategoryID,
			PaymentPolicyID:      pub.PaymentPolicyID,
			ReturnPolicyID:       pub.ReturnPolicyID,
			MerchantLocationKey:  pub.MerchantLocationKey,
			Condition:            pub.Condition,
			ConditionDescription: pub.ConditionDescription,
		},
		Shipping: shipping.DefaultConfig(),
		Profiles: ProfilesConfig{
			Default: listing.ProfileMotoPart,
		},
		ImageHost: ImageHostConfig{
			Backend: ImageHostCloudinary,
			Cloudinary: CloudinaryConfig{
				Folder: "ebay-listings",
			},
			S3: S3Config{
				Prefix:        "listings/",
				PresignExpiry: 7 * 24 * time.Hour,
			},
		},
		Storage: StorageConfig{
			DBPath: "sessions.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "telegram-ebay-bot.log",
		},
	}
}

// PublisherConfig maps the eBay section onto the publisher settings. The
// default fulfillment policy comes from the shipping table.
func (c *Config) PublisherConfig() ebay.PublisherConfig {
	return ebay.PublisherConfig{
		MarketplaceID:              c.Ebay.MarketplaceID,
		Currency:                   c.Ebay.Currency,
		DefaultCategoryID:          c.Ebay.DefaultCategoryID,
		DefaultFulfillmentPolicyID: c.Shipping.DefaultPolicy,
		PaymentPolicyID:            c.Ebay.PaymentPolicyID,
		ReturnPolicyID:             c.Ebay.ReturnPolicyID,
		MerchantLocationKey:        c.Ebay.MerchantLocationKey,
		Condition:                  c.Ebay.Condition,
		ConditionDescription:       c.Ebay.ConditionDescription,
	}
}

// AuthConfig maps the eBay section onto the credential provider settings.
func (c *Config) AuthConfig() ebay.AuthConfig {
	return ebay.AuthConfig{
		ClientID:     c.Ebay.ClientID,
		ClientSecret: c.Ebay.ClientSecret,
		RuName:       c.Ebay.RuName,
		Scopes:       ebay.DefaultScopes,
		AuthURL:      c.Ebay.AuthURL,
		TokenURL:     c.Ebay.TokenURL,
		RefreshToken: c.Ebay.RefreshToken,
	}
}

// ProfileList returns the built-in profiles followed by the custom ones. A
// custom profile with a built-in id replaces it.
func (c *Config) ProfileList() []listing.Profile {
	custom := make(map[string]bool, len(c.Profiles.Custom))
	for _, p := range c.Profiles.Custom {
		custom[p.ID] = true
	}
	var out []listing.Profile
	for _, p := range listing.BuiltinProfiles() {
		if !custom[p.ID] {
			out = append(out, p)
		}
	}
	return append(out, c.Profiles.Custom...)
}
