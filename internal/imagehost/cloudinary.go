package imagehost

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const CloudinaryBaseURL = "https://api.cloudinary.com/v1_1"

type CloudinaryOpts struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	Timeout   time.Duration
}

// Cloudinary uploads images with signed requests.
type Cloudinary struct {
	httpClient *resty.Client
	apiKey     string
	apiSecret  string
	folder     string
	now        func() time.Time
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

type cloudinaryDestroyResponse struct {
	Result string `json:"result"`
}

func NewCloudinary(opts CloudinaryOpts) (*Cloudinary, error) {
	if opts.CloudName == "" || opts.APIKey == "" || opts.APISecret == "" {
		return nil, fmt.Errorf("cloudinary cloud name, api key and api secret are required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = CloudinaryBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Cloudinary{
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/"+opts.CloudName).
			SetTimeout(timeout),
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		folder:    opts.Folder,
		now:       time.Now,
	}, nil
}

// sign computes the Cloudinary request signature: SHA-1 over the sorted
// parameters joined as k=v with &, followed by the API secret.
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func (c *Cloudinary) signedForm(params map[string]string) map[string]string {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	form := make(map[string]string, len(params)+2)
	for k, v := range params {
		form[k] = v
	}
	form["signature"] = sign(params, c.apiSecret)
	form["api_key"] = c.apiKey
	return form
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte, filename string) (*Image, error) {
	params := map[string]string{}
	if c.folder != "" {
		params["folder"] = c.folder
	}

	result := &cloudinaryUploadResponse{}
	_, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetFormData(c.signedForm(params)).
		SetFileReader("file", filename, bytes.NewReader(data)).
		Post("/image/upload"))
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if result.SecureURL == "" || result.PublicID == "" {
		return nil, fmt.Errorf("cloudinary upload returned no url")
	}

	log.Info().Str("publicId", result.PublicID).Int("bytes", len(data)).Msg("uploaded image to cloudinary")
	return &Image{URL: result.SecureURL, ID: result.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, id string) error {
	result := &cloudinaryDestroyResponse{}
	_, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetFormData(c.signedForm(map[string]string{"public_id": id})).
		Post("/image/destroy"))
	if err != nil {
		return fmt.Errorf("cloudinary destroy failed: %w", err)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("cloudinary destroy %s: %s", id, result.Result)
	}
	log.Info().Str("publicId", id).Str("result", result.Result).Msg("deleted image from cloudinary")
	return nil
}
