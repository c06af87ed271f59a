package ebay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	AuthURL  = "https://auth.ebay.com/oauth2/authorize"
	TokenURL = "https://api.ebay.com/identity/v1/oauth2/token"

	// Tokens are refreshed this long before eBay's stated expiry.
	expiryMargin = 60 * time.Second
)

// DefaultScopes are the OAuth scopes needed to list items.
var DefaultScopes = []string{
	"https://api.ebay.com/oauth/api_scope",
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.account",
}

// ErrNoRefreshToken means the seller has not completed the consent flow.
var ErrNoRefreshToken = errors.New("no eBay refresh token; complete the consent flow first")

// RefreshTokenStore persists the seller's refresh token.
type RefreshTokenStore interface {
	GetRefreshToken() (string, error)
	SaveRefreshToken(token string) error
}

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	// RuName is eBay's redirect URL name, used as redirect_uri.
	RuName   string
	Scopes   []string
	AuthURL  string
	TokenURL string
	// RefreshToken seeds the provider when the store has none.
	RefreshToken string
	Timeout      time.Duration
}

// CredentialProvider hands out user access tokens, refreshing them from the
// stored refresh token when expired. It is safe for concurrent use.
type CredentialProvider struct {
	oauth      *oauth2.Config
	store      RefreshTokenStore
	seed       string
	httpClient *http.Client
	resty      *resty.Client

	mu        sync.Mutex
	refresher *refreshSource
	source    oauth2.TokenSource
}

var _ TokenSource = (*CredentialProvider)(nil)

func NewCredentialProvider(cfg AuthConfig, store RefreshTokenStore) *CredentialProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &CredentialProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RuName,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:      store,
		seed:       cfg.RefreshToken,
		httpClient: httpClient,
		resty:      resty.NewWithClient(httpClient),
	}
}

// Token returns a valid access token, refreshing it when expired.
func (p *CredentialProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		refreshToken, err := p.store.GetRefreshToken()
		if err != nil {
			return nil, fmt.Errorf("failed to load refresh token: %w", err)
		}
		if refreshToken == "" {
			refreshToken = p.seed
		}
		if refreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		p.refresher = &refreshSource{
			client:       p.resty,
			cfg:          p.oauth,
			refreshToken: refreshToken,
		}
		p.source = oauth2.ReuseTokenSource(nil, p.refresher)
	}

	// Refreshes happen under mu, so the caller's context can be handed over.
	p.refresher.ctx = ctx
	token, err := p.source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh eBay access token: %w", err)
	}
	return token, nil
}

// AuthCodeURL returns the seller consent URL.
func (p *CredentialProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and persists the refresh
// token. The cached access token is discarded.
func (p *CredentialProvider) Exchange(ctx context.Context, code string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("token response has no refresh token")
	}
	if err := p.store.SaveRefreshToken(token.RefreshToken); err != nil {
		return err
	}

	p.mu.Lock()
	p.source = nil
	p.refresher = nil
	p.mu.Unlock()

	log.Info().Time("expiry", token.Expiry).Msg("stored new eBay refresh token")
	return nil
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// refreshSource implements the refresh_token grant. eBay requires the scope
// parameter on refresh, which oauth2.Config does not send.
type refreshSource struct {
	ctx          context.Context
	client       *resty.Client
	cfg          *oauth2.Config
	refreshToken string
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	result := &refreshResponse{}
	_, err := handleError(s.client.R().
		SetContext(s.ctx).
		SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret).
		SetResult(result).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.refreshToken,
			"scope":         strings.Join(s.cfg.Scopes, " "),
		}).
		Post(s.cfg.Endpoint.TokenURL))
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// Not wrapped: a rejected refresh is a credential failure, not a
		// rejection of the listing request that triggered it.
		return nil, fmt.Errorf("token endpoint returned %d: %s", apiErr.StatusCode, apiErr.Body)
	}
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}
	expiresIn := time.Duration(result.ExpiresIn) * time.Second
	if expiresIn == 0 {
		expiresIn = 2 * time.Hour
	}

	log.Info().Dur("validFor", expiresIn).Msg("new eBay access token received")
	return &oauth2.Token{
		AccessToken:  result.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.refreshToken,
		Expiry:       time.Now().Add(expiresIn - expiryMargin),
	}, nil
}
