package ebay

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const (
	APIBaseURL = "https://api.ebay.com"

	MarketplaceIT = "EBAY_IT"
	// CategoryTreeIT is the taxonomy tree of EBAY_IT.
	CategoryTreeIT = "101"
)

// TokenSource supplies a currently valid user access token.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// APIError is a response with a status outside the accepted set.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s %s (status: %d)", e.Method, e.URL, e.StatusCode)
}

// InventoryAPI is the subset of the Sell Inventory API used for publishing.
type InventoryAPI interface {
	CreateOrReplaceInventoryItem(ctx context.Context, sku string, item *InventoryItem) error
	CreateOffer(ctx context.Context, offer *Offer) (string, error)
	PublishOffer(ctx context.Context, offerID string) (string, error)
}

// CategoryAPI looks up taxonomy category suggestions.
type CategoryAPI interface {
	SuggestCategory(ctx context.Context, treeID, query string) (*Category, error)
}

type ClientOpts struct {
	BaseURL         string
	Tokens          TokenSource
	ContentLanguage string
	Timeout         time.Duration
}

// Client calls the eBay REST APIs with the user's access token.
type Client struct {
	httpClient      *resty.Client
	tokens          TokenSource
	contentLanguage string
}

var (
	_ InventoryAPI = (*Client)(nil)
	_ CategoryAPI  = (*Client)(nil)
)

func NewClient(opts ClientOpts) *Client {
	baseURL := APIBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	contentLanguage := opts.ContentLanguage
	if contentLanguage == "" {
		contentLanguage = "it-IT"
	}
	return &Client{
		httpClient: resty.New().
			SetDebug(false).
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeaders(map[string]string{
				"Accept":       "application/json",
				"Content-Type": "application/json",
			}),
		tokens:          opts.Tokens,
		contentLanguage: contentLanguage,
	}
}

func (c *Client) req(ctx context.Context, result any) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	request := c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetHeader("Content-Language", c.contentLanguage)

	if result != nil {
		request.SetResult(result)
	}
	return request, nil
}

// handleError turns responses outside the accepted statuses into *APIError.
// Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error, accepted ...int) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if len(accepted) == 0 {
		if !res.IsError() {
			return res, nil
		}
	} else if slices.Contains(accepted, res.StatusCode()) {
		return res, nil
	}
	return res, &APIError{
		Method:     res.Request.Method,
		URL:        res.Request.URL,
		StatusCode: res.StatusCode(),
		Body:       res.String(),
	}
}

func (c *Client) CreateOrReplaceInventoryItem(ctx context.Context, sku string, item *InventoryItem) error {
	request, err := c.req(ctx, nil)
	if err != nil {
		return err
	}
	res, err := request.
		SetPathParams(map[string]string{"sku": sku}).
		SetBody(item).
		Put("/sell/inventory/v1/inventory_item/{sku}")
	_, err = handleError(res, err, 200, 201, 204)
	return err
}

func (c *Client) CreateOffer(ctx context.Context, offer *Offer) (string, error) {
	result := &createOfferResponse{}
	request, err := c.req(ctx, result)
	if err != nil {
		return "", err
	}
	res, err := request.SetBody(offer).Post("/sell/inventory/v1/offer")
	if _, err := handleError(res, err, 201); err != nil {
		return "", err
	}
	if result.OfferID == "" {
		return "", fmt.Errorf("offer response has no offerId")
	}
	return result.OfferID, nil
}

func (c *Client) PublishOffer(ctx context.Context, offerID string) (string, error) {
	result := &publishOfferResponse{}
	request, err := c.req(ctx, result)
	if err != nil {
		return "", err
	}
	res, err := request.
		SetPathParams(map[string]string{"offerId": offerID}).
		Post("/sell/inventory/v1/offer/{offerId}/publish")
	if _, err := handleError(res, err, 200); err != nil {
		return "", err
	}
	return result.ListingID, nil
}

// SuggestCategory returns the top taxonomy suggestion for query, or nil.
func (c *Client) SuggestCategory(ctx context.Context, treeID, query string) (*Category, error) {
	result := &categorySuggestionsResponse{}
	request, err := c.req(ctx, result)
	if err != nil {
		return nil, err
	}
	res, err := request.
		SetPathParams(map[string]string{"treeId": treeID}).
		SetQueryParam("q", query).
		Get("/commerce/taxonomy/v1_beta/category_tree/{treeId}/get_category_suggestions")
	if _, err := handleError(res, err, 200, 204); err != nil {
		return nil, err
	}
	for _, s := range result.CategorySuggestions {
		if s.Category.CategoryID != "" {
			return &Category{ID: s.Category.CategoryID, Name: s.Category.CategoryName}, nil
		}
	}
	return nil, nil
}
