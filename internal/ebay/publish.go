package ebay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrMissingField means Publish was called without required listing data.
var ErrMissingField = errors.New("missing required listing field")

// Step identifies a publish request.
type Step string

const (
	StepInventoryItem Step = "inventory_item"
	StepOffer         Step = "offer"
	StepPublish       Step = "publish"
)

// PublisherConfig holds the fixed offer settings.
type PublisherConfig struct {
	MarketplaceID              string
	Currency                   string
	DefaultCategoryID          string
	DefaultFulfillmentPolicyID string
	PaymentPolicyID            string
	ReturnPolicyID             string
	MerchantLocationKey        string
	Condition                  string
	ConditionDescription       string
}

// DefaultPublisherConfig returns the production settings for EBAY_IT.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MarketplaceID:              MarketplaceIT,
		Currency:                   "EUR",
		DefaultCategoryID:          "179753",
		DefaultFulfillmentPolicyID: "273958658015",
		PaymentPolicyID:            "273958512015",
		ReturnPolicyID:             "273958551015",
		MerchantLocationKey:        "sezze-warehouse",
		Condition:                  "USED_EXCELLENT",
		ConditionDescription: "Parte usata con segni di usura estetici, perfettamente funzionante. " +
			"Controlla le foto per le condizioni esatte. / Used part with cosmetic wear, " +
			"fully functional. Please check images for exact condition.",
	}
}

// Listing is everything needed to publish one item.
type Listing struct {
	Title       string
	Description string
	Brand       string
	Model       string
	PartNumber  string
	Color       string
	Material    string
	ProductType string
	ImageURLs   []string
	Price       float64

	// Optional overrides; empty means the configured default.
	FulfillmentPolicyID string
	CategoryID          string

	// ExtraAspects are added verbatim to the item aspects.
	ExtraAspects map[string][]string
}

// Outcome is the result of a publish attempt. Remote rejections are
// reported here rather than as errors.
type Outcome struct {
	OK        bool
	SKU       string
	OfferID   string
	ListingID string

	// Set when OK is false.
	Step   Step
	Status int
	Body   string
}

// Message renders the outcome for the user.
func (o *Outcome) Message() string {
	if o.OK {
		if o.ListingID != "" {
			return fmt.Sprintf("Successfully published offer: %s (listing %s)", o.OfferID, o.ListingID)
		}
		return fmt.Sprintf("Successfully published offer: %s", o.OfferID)
	}
	var what string
	switch o.Step {
	case StepInventoryItem:
		what = "create inventory item"
	case StepOffer:
		what = "create offer"
	default:
		what = "publish offer"
	}
	return fmt.Sprintf("Failed to %s: %d %s", what, o.Status, o.Body)
}

// Publisher creates an inventory item, an offer and publishes it.
type Publisher struct {
	api    InventoryAPI
	cfg    PublisherConfig
	newSKU func() string
}

func NewPublisher(api InventoryAPI, cfg PublisherConfig) *Publisher {
	return &Publisher{
		api:    api,
		cfg:    cfg,
		newSKU: func() string { return "sku-" + uuid.NewString()[:8] },
	}
}

func validate(l Listing) error {
	switch {
	case strings.TrimSpace(l.Title) == "":
		return fmt.Errorf("%w: title", ErrMissingField)
	case strings.TrimSpace(l.Description) == "":
		return fmt.Errorf("%w: description", ErrMissingField)
	case len(l.ImageURLs) == 0:
		return fmt.Errorf("%w: image urls", ErrMissingField)
	case !(l.Price > 0):
		return fmt.Errorf("%w: price", ErrMissingField)
	}
	return nil
}

// Publish runs the three steps in order, stopping at the first rejection.
// A fresh SKU is minted per call. Steps already completed are not undone.
func (p *Publisher) Publish(ctx context.Context, l Listing) (*Outcome, error) {
	if err := validate(l); err != nil {
		return nil, err
	}

	sku := p.newSKU()
	logger := log.With().Str("sku", sku).Logger()
	outcome := &Outcome{SKU: sku}

	if err := p.api.CreateOrReplaceInventoryItem(ctx, sku, p.inventoryItem(l)); err != nil {
		return rejected(outcome, StepInventoryItem, err)
	}
	logger.Info().Msg("inventory item created")

	offerID, err := p.api.CreateOffer(ctx, p.offer(sku, l))
	if err != nil {
		return rejected(outcome, StepOffer, err)
	}
	outcome.OfferID = offerID
	logger.Info().Str("offerId", offerID).Msg("offer created")

	listingID, err := p.api.PublishOffer(ctx, offerID)
	if err != nil {
		return rejected(outcome, StepPublish, err)
	}
	outcome.OK = true
	outcome.ListingID = listingID
	logger.Info().Str("offerId", offerID).Str("listingId", listingID).Msg("offer published")
	return outcome, nil
}

func rejected(outcome *Outcome, step Step, err error) (*Outcome, error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		outcome.Step = step
		outcome.Status = apiErr.StatusCode
		outcome.Body = apiErr.Body
		log.Warn().Str("sku", outcome.SKU).Str("step", string(step)).Int("status", apiErr.StatusCode).Str("body", apiErr.Body).Msg("publish step rejected")
		return outcome, nil
	}
	return nil, fmt.Errorf("%s: %w", step, err)
}

func known(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}

func (p *Publisher) inventoryItem(l Listing) *InventoryItem {
	aspects := make(map[string][]string)
	add := func(name, value string) {
		if v := known(value); v != "" {
			aspects[name] = []string{v}
		}
	}
	add("Marca", l.Brand)
	add("MPN", l.PartNumber)
	add("Produttore compatibile", l.Brand)
	add("Tipo", l.ProductType)
	add("Colore", l.Color)
	add("Materiale", l.Material)
	maps.Copy(aspects, l.ExtraAspects)

	return &InventoryItem{
		Availability:         Availability{ShipToLocationAvailability: ShipToLocationAvailability{Quantity: 1}},
		Condition:            p.cfg.Condition,
		ConditionDescription: p.cfg.ConditionDescription,
		Product: Product{
			Title:       l.Title,
			Description: l.Description,
			ImageURLs:   l.ImageURLs,
			Brand:       known(l.Brand),
			MPN:         known(l.PartNumber),
			Aspects:     aspects,
		},
	}
}

func (p *Publisher) offer(sku string, l Listing) *Offer {
	category := l.CategoryID
	if category == "" {
		category = p.cfg.DefaultCategoryID
	}
	fulfillment := l.FulfillmentPolicyID
	if fulfillment == "" {
		fulfillment = p.cfg.DefaultFulfillmentPolicyID
	}
	return &Offer{
		SKU:                sku,
		MarketplaceID:      p.cfg.MarketplaceID,
		Format:             "FIXED_PRICE",
		AvailableQuantity:  1,
		CategoryID:         category,
		ListingDescription: l.Description,
		ListingPolicies: ListingPolicies{
			FulfillmentPolicyID: fulfillment,
			PaymentPolicyID:     p.cfg.PaymentPolicyID,
			ReturnPolicyID:      p.cfg.ReturnPolicyID,
		},
		PricingSummary: PricingSummary{Price: Amount{
			Value:    strconv.FormatFloat(l.Price, 'f', 2, 64),
			Currency: p.cfg.Currency,
		}},
		QuantityLimitPerBuyer:        1,
		IncludeCatalogProductDetails: true,
		MerchantLocationKey:          p.cfg.MerchantLocationKey,
		Tax:                          Tax{ApplyTax: false},
	}
}
