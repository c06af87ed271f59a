package conversation

import (
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
)

// State is a conversation state.
type State int

const (
	// StateIdle is before /start and after /end.
	StateIdle State = iota
	StateCollectingDetails
	StateAskingPhotos
	StateAskingPrice
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollectingDetails:
		return "collecting_details"
	case StateAskingPhotos:
		return "asking_photos"
	case StateAskingPrice:
		return "asking_price"
	}
	return "unknown"
}

// Image is an uploaded photo and its host handle.
type Image struct {
	URL    string
	HostID string
}

// Derived holds the values computed from the AI result.
type Derived struct {
	Title               string
	Description         string
	Color               string
	WeightClass         shipping.Class
	EstimatedWeightKg   *float64
	FulfillmentPolicyID string
	CategoryID          string
	CategoryName        string
}

// Listing is the per-listing part of a session. It is reset as a whole
// between listings.
type Listing struct {
	Images  []Image
	AI      *llm.Result
	Derived Derived

	PhotoProcessing bool
	AIDataFetched   bool
	PricePromptSent bool
}

// Session is one user's conversation. It is not safe for concurrent use;
// the bot serializes turns per user.
type Session struct {
	UserID     int64
	State      State
	Active     bool
	ProfileID  string
	Fields     map[string]string
	FieldIndex int

	Listing Listing
}

// NewSession returns an idle session.
func NewSession(userID int64) *Session {
	return &Session{UserID: userID, Fields: make(map[string]string)}
}

// ImageURLs returns the public URLs of the listing's images.
func (s *Session) ImageURLs() []string {
	urls := make([]string, len(s.Listing.Images))
	for i, img := range s.Listing.Images {
		urls[i] = img.URL
	}
	return urls
}

// HostIDs returns the image host handles of the listing's images.
func (s *Session) HostIDs() []string {
	ids := make([]string, len(s.Listing.Images))
	for i, img := range s.Listing.Images {
		ids[i] = img.HostID
	}
	return ids
}

// ClearListing drops all per-listing data.
func (s *Session) ClearListing() {
	s.Listing = Listing{}
}

// reset clears everything except the profile selection.
func (s *Session) reset() {
	profileID := s.ProfileID
	*s = Session{UserID: s.UserID, ProfileID: profileID, Fields: make(map[string]string)}
}
