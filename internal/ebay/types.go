package ebay

// InventoryItem is the body of createOrReplaceInventoryItem.
type InventoryItem struct {
	Availability         Availability `json:"availability"`
	Condition            string       `json:"condition"`
	ConditionDescription string       `json:"conditionDescription,omitempty"`
	Product              Product      `json:"product"`
}

type Availability struct {
	ShipToLocationAvailability ShipToLocationAvailability `json:"shipToLocationAvailability"`
}

type ShipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

type Product struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	ImageURLs   []string            `json:"imageUrls"`
	Brand       string              `json:"brand,omitempty"`
	MPN         string              `json:"mpn,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
}

// Offer is the body of createOffer.
type Offer struct {
	SKU                          string          `json:"sku"`
	MarketplaceID                string          `json:"marketplaceId"`
	Format                       string          `json:"format"`
	AvailableQuantity            int             `json:"availableQuantity"`
	CategoryID                   string          `json:"categoryId"`
	ListingDescription           string          `json:"listingDescription"`
	ListingPolicies              ListingPolicies `json:"listingPolicies"`
	PricingSummary               PricingSummary  `json:"pricingSummary"`
	QuantityLimitPerBuyer        int             `json:"quantityLimitPerBuyer"`
	IncludeCatalogProductDetails bool            `json:"includeCatalogProductDetails"`
	MerchantLocationKey          string          `json:"merchantLocationKey"`
	Tax                          Tax             `json:"tax"`
	HideBuyerDetails             bool            `json:"hideBuyerDetails"`
}

type ListingPolicies struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string `json:"paymentPolicyId"`
	ReturnPolicyID      string `json:"returnPolicyId"`
}

type PricingSummary struct {
	Price Amount `json:"price"`
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Tax struct {
	ApplyTax bool `json:"applyTax"`
}

type createOfferResponse struct {
	OfferID string `json:"offerId"`
}

type publishOfferResponse struct {
	ListingID string `json:"listingId"`
}

// Category is a marketplace leaf category.
type Category struct {
	ID   string
	Name string
}

type categorySuggestionsResponse struct {
	CategorySuggestions []struct {
		Category struct {
			CategoryID   string `json:"categoryId"`
			CategoryName string `json:"categoryName"`
		} `json:"category"`
	} `json:"categorySuggestions"`
}
