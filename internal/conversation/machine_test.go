package conversation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/imagehost"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
	"github.com/raine/telegram-ebay-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioAResponse = `{
	"is_motor": false,
	"part_type": "Brake lever",
	"color": "Black",
	"compatible_years": "1997-2000",
	"estimated_weight_kg": 0.3
}`

type fakeAnalyzer struct {
	mu       sync.Mutex
	raw      string
	err      error
	requests []llm.Request
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Raw: f.raw}, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSuggester struct {
	category *ebay.Category
	err      error
	queries  []string
}

func (f *fakeSuggester) Suggest(ctx context.Context, query string) (*ebay.Category, error) {
	f.queries = append(f.queries, query)
	return f.category, f.err
}

type memoryStore struct {
	profiles map[int64]string
	listings []storage.ListingRecord
	setErr   error
}

func (m *memoryStore) GetProfile(telegramID int64) (string, error) {
	return m.profiles[telegramID], nil
}

func (m *memoryStore) SetProfile(telegramID int64, profileID string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.profiles == nil {
		m.profiles = make(map[int64]string)
	}
	m.profiles[telegramID] = profileID
	return nil
}

func (m *memoryStore) RecordListing(rec storage.ListingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	m.listings = append([]storage.ListingRecord{rec}, m.listings...)
	return nil
}

func (m *memoryStore) RecentListings(telegramID int64, limit int) ([]storage.ListingRecord, error) {
	var out []storage.ListingRecord
	for _, rec := range m.listings {
		if rec.TelegramID == telegramID && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

type harness struct {
	machine   *Machine
	session   *Session
	host      *imagehost.MockHost
	analyzer  *fakeAnalyzer
	inventory *ebay.MockInventoryAPI
	suggester *fakeSuggester
	store     *memoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := listing.NewCatalog(listing.BuiltinProfiles(), listing.ProfileMotoPart, nil)
	require.NoError(t, err)

	cfg := shipping.DefaultConfig()
	cfg.Bands[0].MaxKg = 0.5
	classifier, err := shipping.New(cfg)
	require.NoError(t, err)

	h := &harness{
		session:   NewSession(42),
		host:      &imagehost.MockHost{},
		analyzer:  &fakeAnalyzer{raw: scenarioAResponse},
		inventory: &ebay.MockInventoryAPI{},
		suggester: &fakeSuggester{category: &ebay.Category{ID: "177773", Name: "Leve freno"}},
		store:     &memoryStore{},
	}
	h.machine = NewMachine(Deps{
		Images:     h.host,
		Analyzer:   h.analyzer,
		Categories: h.suggester,
		Publisher:  ebay.NewPublisher(h.inventory, ebay.DefaultPublisherConfig()),
		Profiles:   h.store,
		Listings:   h.store,
		Catalog:    catalog,
		Classifier: classifier,
	})
	return h
}

func (h *harness) send(ev Event) []string {
	replies := h.machine.Handle(context.Background(), h.session, ev)
	texts := make([]string, len(replies))
	for i, r := range replies {
		texts[i] = r.Text
	}
	return texts
}

func (h *harness) text(s string) []string {
	return h.send(Event{Kind: EventText, Text: s})
}

func (h *harness) photo(t *testing.T) []string {
	t.Helper()
	return h.send(Event{Kind: EventPhoto, Photo: &Photo{Data: testJPEG(t), MIMEType: "image/jpeg"}})
}

// startMoto answers the moto profile questions for scenario A.
func (h *harness) startMoto() {
	h.send(Event{Kind: EventStart})
	h.text("Honda")
	h.text("Transalp 650")
	h.text("1999")
	h.text("12345")
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)), nil))
	return buf.Bytes()
}

func assertMatchedImages(t *testing.T, s *Session) {
	t.Helper()
	assert.Equal(t, len(s.ImageURLs()), len(s.HostIDs()))
}

func TestMachine_ScenarioA(t *testing.T) {
	h := newHarness(t)
	h.startMoto()
	require.Equal(t, StateAskingPhotos, h.session.State)

	replies := h.photo(t)

	l := h.session.Listing
	require.True(t, l.AIDataFetched)
	assert.False(t, l.PhotoProcessing)
	assert.Equal(t, shipping.ClassXS, l.Derived.WeightClass)
	assert.Equal(t, "273958585015", l.Derived.FulfillmentPolicyID)
	assert.Contains(t, l.Derived.Title, "Brake lever Honda Transalp 650 1997-2000")
	assert.LessOrEqual(t, len([]rune(l.Derived.Title)), listing.MaxTitleLength)
	assert.Contains(t, l.Derived.Description, "Black")
	assert.Contains(t, l.Derived.Description, "12345")
	assert.Equal(t, "177773", l.Derived.CategoryID)
	assert.Equal(t, []string{l.Derived.Title}, h.suggester.queries)
	assert.Equal(t, StateAskingPrice, h.session.State)
	assert.Contains(t, replies, "Suggested eBay category: Leve freno (177773)")
	assert.Contains(t, replies, MsgPricePrompt)

	req := h.analyzer.requests[0]
	assert.Equal(t, "Honda", req.Hints.Brand)
	assert.Equal(t, "1999", req.Hints.Year)
	assert.Equal(t, "12345", req.Hints.Extra["mpn"])
	assert.NotEmpty(t, req.Thresholds)
	assert.NotEmpty(t, req.ImageData)

	replies = h.text("19,99")
	assert.Equal(t, []string{
		"Successfully published offer: mock-offer-id (listing mock-listing-id)",
		MsgListAnother,
	}, replies)

	offer := h.inventory.LastCallArgs("CreateOffer")[0].(*ebay.Offer)
	assert.Equal(t, "19.99", offer.PricingSummary.Price.Value)
	assert.Equal(t, "273958585015", offer.ListingPolicies.FulfillmentPolicyID)
	assert.Equal(t, "177773", offer.CategoryID)

	require.Len(t, h.store.listings, 1)
	assert.Equal(t, "mock-listing-id", h.store.listings[0].ListingID)
	assert.Equal(t, "XS", h.store.listings[0].WeightClass)
}

func TestMachine_ScenarioB_UnparsableResponseStillProceeds(t *testing.T) {
	h := newHarness(t)
	h.analyzer.raw = "Sorry, I cannot help with that."
	h.startMoto()

	h.photo(t)

	l := h.session.Listing
	require.True(t, l.AIDataFetched)
	assert.False(t, l.AI.IsMotor)
	assert.Equal(t, llm.NA, l.AI.Color)
	assert.Equal(t, shipping.ClassM, l.Derived.WeightClass)
	assert.Equal(t, "273958658015", l.Derived.FulfillmentPolicyID)
	assert.NotEmpty(t, l.Derived.Title)
	assert.NotEmpty(t, l.Derived.Description)

	replies := h.text("10")
	assert.Contains(t, replies, MsgListAnother)
}

func TestMachine_ScenarioC_RejectionThenRetry(t *testing.T) {
	h := newHarness(t)
	attempts := 0
	h.inventory.CreateOrReplaceInventoryItemFunc = func(ctx context.Context, sku string, item *ebay.InventoryItem) error {
		attempts++
		if attempts == 1 {
			return &ebay.APIError{StatusCode: 400, Body: `{"errors":[{"errorId":25002}]}`}
		}
		return nil
	}
	h.startMoto()
	h.photo(t)

	replies := h.text("25")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "400")
	assert.Contains(t, replies[0], "Failed to create inventory item")
	assert.Equal(t, StateAskingPrice, h.session.State)
	assert.True(t, h.session.Listing.AIDataFetched)
	assert.Len(t, h.session.Listing.Images, 1)

	replies = h.text("25")
	assert.Contains(t, replies, MsgListAnother)

	calls := h.inventory.Calls
	var skus []string
	for _, c := range calls {
		if c.Method == "CreateOrReplaceInventoryItem" {
			skus = append(skus, c.Args[0].(string))
		}
	}
	require.Len(t, skus, 2)
	assert.NotEqual(t, skus[0], skus[1])
}

func TestMachine_ScenarioD_BackDeletesAllImages(t *testing.T) {
	h := newHarness(t)
	h.startMoto()
	h.photo(t)
	h.photo(t)
	require.Len(t, h.session.Listing.Images, 2)

	replies := h.send(Event{Kind: EventBack})

	assert.Equal(t, []string{MsgReturningToPhoto}, replies)
	assert.Equal(t, 2, h.host.CallCount("Delete"))
	assert.Equal(t, [][]any{{"img-1"}, {"img-2"}}, h.host.CallArgs("Delete"))
	assert.Equal(t, StateAskingPhotos, h.session.State)
	assert.Empty(t, h.session.ImageURLs())
	assert.Empty(t, h.session.HostIDs())
	assert.False(t, h.session.Listing.AIDataFetched)
}

func TestMachine_PublishClearsListing(t *testing.T) {
	h := newHarness(t)
	h.startMoto()
	h.photo(t)
	h.text("19.99")

	assert.Equal(t, Listing{}, h.session.Listing)
	assert.Equal(t, StateAskingPhotos, h.session.State)
	assert.Equal(t, "Honda", h.session.Fields["brand"])

	// The next listing runs its own analysis and price prompt.
	replies := h.photo(t)
	assert.Equal(t, 2, h.analyzer.callCount())
	assert.Contains(t, replies, MsgPricePrompt)
}

func TestMachine_UploadFailureKeepsImagesMatched(t *testing.T) {
	h := newHarness(t)
	h.startMoto()
	h.photo(t)

	h.host.UploadFunc = func(ctx context.Context, data []byte, filename string) (*imagehost.Image, error) {
		return nil, errors.New("connection reset")
	}
	replies := h.photo(t)

	assert.Equal(t, []string{MsgUploadFailed}, replies)
	assert.Len(t, h.session.Listing.Images, 1)
	assertMatchedImages(t, h.session)
}

func TestMachine_StalledUploadTimesOut(t *testing.T) {
	h := newHarness(t)
	h.machine.deps.UploadTimeout = 20 * time.Millisecond
	h.startMoto()

	h.host.UploadFunc = func(ctx context.Context, data []byte, filename string) (*imagehost.Image, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &imagehost.Image{URL: "https://img.example.com/late.jpg", ID: "late"}, nil
		}
	}

	start := time.Now()
	replies := h.photo(t)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{MsgUploadFailed}, replies)
	assert.Empty(t, h.session.Listing.Images)
	assert.Equal(t, StateAskingPhotos, h.session.State)
	assert.Equal(t, 0, h.analyzer.callCount())
}

func TestMachine_StalledDeleteTimesOut(t *testing.T) {
	h := newHarness(t)
	h.machine.deps.UploadTimeout = 20 * time.Millisecond
	h.startMoto()
	h.photo(t)
	h.photo(t)

	h.host.DeleteFunc = func(ctx context.Context, id string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	start := time.Now()
	replies := h.send(Event{Kind: EventBack})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{MsgReturningToPhoto}, replies)
	assert.Equal(t, 2, h.host.CallCount("Delete"))
	assert.Empty(t, h.session.Listing.Images)
}

func TestMachine_PricePromptSentOnce(t *testing.T) {
	h := newHarness(t)
	h.startMoto()

	first := h.photo(t)
	second := h.photo(t)
	third := h.photo(t)

	assert.Contains(t, first, MsgPricePrompt)
	assert.Equal(t, []string{"Photo added (2 in total)."}, second)
	assert.Equal(t, []string{"Photo added (3 in total)."}, third)
	assert.Equal(t, 1, h.analyzer.callCount())
	assertMatchedImages(t, h.session)
}

func TestMachine_ProcessingFailureRetriesOnNextPhoto(t *testing.T) {
	h := newHarness(t)
	h.analyzer.err = errors.New("deadline exceeded")
	h.startMoto()

	replies := h.photo(t)
	assert.Equal(t, []string{MsgProcessingFailed}, replies)
	assert.False(t, h.session.Listing.AIDataFetched)
	assert.False(t, h.session.Listing.PhotoProcessing)
	assert.Equal(t, []string{MsgMissingData}, h.text("10"))

	h.analyzer.err = nil
	replies = h.photo(t)
	assert.Contains(t, replies, MsgPricePrompt)
	assert.Equal(t, 2, h.analyzer.callCount())
}

func TestMachine_CategoryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.suggester.err = errors.New("taxonomy down")
	h.startMoto()

	replies := h.photo(t)

	assert.True(t, h.session.Listing.AIDataFetched)
	assert.Empty(t, h.session.Listing.Derived.CategoryID)
	assert.Contains(t, replies, MsgPricePrompt)
}

func TestMachine_InvalidInput(t *testing.T) {
	h := newHarness(t)
	h.startMoto()

	assert.Equal(t, []string{MsgInvalidImage},
		h.send(Event{Kind: EventPhoto, Photo: &Photo{Data: []byte("%PDF-1.4"), MIMEType: "application/pdf"}}))
	assert.Equal(t, []string{MsgSendPhotosFirst}, h.text("hello"))
	assert.Zero(t, h.host.CallCount("Upload"))

	h.photo(t)
	for _, input := range []string{"abc", "0", "-5", ""} {
		assert.Equal(t, []string{MsgInvalidPrice}, h.text(input), input)
	}
	assert.Equal(t, StateAskingPrice, h.session.State)
}

func TestMachine_TransportErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	h.inventory.CreateOfferFunc = func(ctx context.Context, offer *ebay.Offer) (string, error) {
		return "", errors.New("dial tcp: i/o timeout")
	}
	h.startMoto()
	h.photo(t)

	replies := h.text("10")

	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Failed to contact eBay")
	assert.Equal(t, StateAskingPrice, h.session.State)
	assert.Len(t, h.session.Listing.Images, 1)
}

func TestMachine_FieldCollection(t *testing.T) {
	h := newHarness(t)

	replies := h.send(Event{Kind: EventStart})
	assert.Equal(t, StateCollectingDetails, h.session.State)
	assert.Contains(t, replies[0], "brand")

	replies = h.text("  ")
	assert.Contains(t, replies[0], "Please enter a value")
	replies = h.text("skip")
	assert.Contains(t, replies[0], "can't be skipped")
	assert.Equal(t, 0, h.session.FieldIndex)

	h.text("Honda")
	h.text("Transalp 650")
	h.text("1999")
	replies = h.text("SKIP")

	assert.Equal(t, StateAskingPhotos, h.session.State)
	assert.Equal(t, "", h.session.Fields["mpn"])
	require.Len(t, replies, 2)
	assert.Equal(t, "Session started (Motorcycle part):\nbrand: Honda\nmodel: Transalp 650\nyear: 1999\nmpn: -", replies[0])
	assert.Equal(t, MsgPhotosPrompt, replies[1])
}

func TestMachine_BackPopsFields(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{MsgNoActiveSession}, h.send(Event{Kind: EventBack}))

	h.send(Event{Kind: EventStart})
	assert.Equal(t, []string{MsgNothingToGoBack}, h.send(Event{Kind: EventBack}))

	h.text("Honda")
	h.text("Transalp")
	replies := h.send(Event{Kind: EventBack})
	assert.Contains(t, replies[0], "Going back.")
	assert.Contains(t, replies[0], "model")
	assert.Equal(t, 1, h.session.FieldIndex)
	assert.NotContains(t, h.session.Fields, "model")

	h.text("Transalp 650")
	h.text("1999")
	h.text("skip")
	require.Equal(t, StateAskingPhotos, h.session.State)

	h.send(Event{Kind: EventBack})
	assert.Equal(t, StateCollectingDetails, h.session.State)
	assert.Equal(t, 3, h.session.FieldIndex)
	assert.NotContains(t, h.session.Fields, "mpn")
}

func TestMachine_Continue(t *testing.T) {
	h := newHarness(t)
	h.send(Event{Kind: EventStart})

	replies := h.send(Event{Kind: EventContinue})
	assert.Contains(t, replies[0], "required details left")

	h.text("Honda")
	h.text("Transalp 650")
	h.text("1999")
	h.send(Event{Kind: EventContinue})
	assert.Equal(t, StateAskingPhotos, h.session.State)
	assert.Equal(t, "", h.session.Fields["mpn"])

	assert.Equal(t, []string{MsgSendNextPhotos}, h.send(Event{Kind: EventContinue}))
	h.photo(t)
	assert.Equal(t, []string{MsgListingPending}, h.send(Event{Kind: EventContinue}))
}

func TestMachine_EndDiscardsOrphanedImages(t *testing.T) {
	h := newHarness(t)
	h.startMoto()
	h.photo(t)

	replies := h.send(Event{Kind: EventEnd})

	assert.Equal(t, []string{MsgSessionEnded}, replies)
	assert.Equal(t, 1, h.host.CallCount("Delete"))
	assert.Equal(t, StateIdle, h.session.State)
	assert.False(t, h.session.Active)
	assert.Equal(t, []string{MsgSessionInactive}, h.text("hello"))
	assert.Equal(t, []string{MsgSessionInactive}, h.send(Event{Kind: EventSession}))
}

func TestMachine_DeleteFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.host.DeleteFunc = func(ctx context.Context, id string) error {
		return errors.New("gone")
	}
	h.startMoto()
	h.photo(t)
	h.photo(t)

	h.send(Event{Kind: EventBack})

	assert.Equal(t, 2, h.host.CallCount("Delete"))
	assert.Empty(t, h.session.Listing.Images)
}

func TestMachine_Profile(t *testing.T) {
	h := newHarness(t)

	replies := h.send(Event{Kind: EventProfile})
	assert.Contains(t, replies[0], "moto_part - Motorcycle part")
	assert.Contains(t, replies[0], "(current)")

	replies = h.send(Event{Kind: EventProfile, Text: "furniture"})
	assert.Equal(t, []string{`Unknown profile "furniture". Valid profiles: moto_part, generic`}, replies)

	h.startMoto()
	replies = h.send(Event{Kind: EventProfile, Text: "generic"})
	assert.Equal(t, "Profile set to Generic product.", replies[0])
	assert.Equal(t, "generic", h.store.profiles[42])
	assert.Equal(t, listing.ProfileGeneric, h.session.ProfileID)
	assert.Equal(t, StateCollectingDetails, h.session.State)
	assert.Empty(t, h.session.Fields)
	assert.Contains(t, replies[1], "What item are you listing?")

	// The selection survives /end and /start.
	h.send(Event{Kind: EventEnd})
	h.send(Event{Kind: EventStart})
	assert.Equal(t, listing.ProfileGeneric, h.session.ProfileID)
}

func TestMachine_ProfileSaveFailure(t *testing.T) {
	h := newHarness(t)
	h.store.setErr = errors.New("disk full")

	replies := h.send(Event{Kind: EventProfile, Text: "generic"})

	assert.Equal(t, []string{MsgProfileSaveFail}, replies)
	assert.Empty(t, h.session.ProfileID)
}

func TestMachine_GenericProfileUsesUserFields(t *testing.T) {
	h := newHarness(t)
	h.analyzer.raw = `{"title": "Cuffie wireless", "brand": "N/A", "color": "Nero"}`
	h.send(Event{Kind: EventProfile, Text: "generic"})
	h.send(Event{Kind: EventStart})
	for _, answer := range []string{"Wireless headphones", "Sony", "skip", "Used", "skip", "Blue", "skip"} {
		h.text(answer)
	}
	require.Equal(t, StateAskingPhotos, h.session.State)

	h.photo(t)
	h.text("40")

	item := h.inventory.LastCallArgs("CreateOrReplaceInventoryItem")[1].(*ebay.InventoryItem)
	assert.Equal(t, []string{"Sony"}, item.Product.Aspects["Marca"])
	assert.Equal(t, []string{"Blue"}, item.Product.Aspects["Colore"])
}

func TestMachine_SessionAndListings(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{MsgNoListings}, h.send(Event{Kind: EventListings}))

	h.startMoto()
	h.photo(t)
	replies := h.send(Event{Kind: EventSession})
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Profile: Motorcycle part (moto_part)")
	assert.Contains(t, replies[0], "brand: Honda")
	assert.Contains(t, replies[0], "Photos: 1")
	assert.Contains(t, replies[0], "Weight class: XS")
	assert.Contains(t, replies[0], "Category: Leve freno (177773)")

	h.text("12.50")
	replies = h.send(Event{Kind: EventListings})
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "12.50 EUR (listing mock-listing-id)")
}

func TestMachine_Help(t *testing.T) {
	h := newHarness(t)

	replies := h.send(Event{Kind: EventHelp})

	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "Available commands:"))
	assert.Contains(t, replies[0], "\n/start - Start a new session")
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"19.99", 19.99, true},
		{"19,99", 19.99, true},
		{" 5 ", 5, true},
		{"€ 12", 12, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"twelve", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
