package conversation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/dedent"
	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/imagehost"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/photo"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
	"github.com/raine/telegram-ebay-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAnalyzeTimeout  = 30 * time.Second
	DefaultCategoryTimeout = 15 * time.Second
	DefaultUploadTimeout   = 30 * time.Second

	skipToken           = "skip"
	recentListingsLimit = 10
)

// EventKind identifies a user input.
type EventKind int

const (
	EventStart EventKind = iota
	EventText
	EventPhoto
	EventBack
	EventContinue
	EventEnd
	EventSession
	EventHelp
	EventProfile
	EventListings
)

// Photo is a downloaded chat photo.
type Photo struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Event is one user input. Text carries the message text, or the argument
// of a command.
type Event struct {
	Kind  EventKind
	Text  string
	Photo *Photo
}

// Reply is a message to send back to the user.
type Reply struct {
	Text string
}

type CategorySuggester interface {
	Suggest(ctx context.Context, query string) (*ebay.Category, error)
}

type Publisher interface {
	Publish(ctx context.Context, l ebay.Listing) (*ebay.Outcome, error)
}

type ProfileStore interface {
	GetProfile(telegramID int64) (string, error)
	SetProfile(telegramID int64, profileID string) error
}

type ListingRecorder interface {
	RecordListing(rec storage.ListingRecord) error
	RecentListings(telegramID int64, limit int) ([]storage.ListingRecord, error)
}

// Deps are the collaborators of a Machine. Categories, Profiles and
// Listings are optional.
type Deps struct {
	Images     imagehost.Host
	Analyzer   llm.Analyzer
	Categories CategorySuggester
	Publisher  Publisher
	Profiles   ProfileStore
	Listings   ListingRecorder
	Catalog    *listing.Catalog
	Classifier *shipping.Classifier

	AnalyzeTimeout    time.Duration
	CategoryTimeout   time.Duration
	UploadTimeout     time.Duration
	MaxImageDimension int
}

// Machine is the conversation transition function. It holds no per-user
// state; everything lives in the Session passed to Handle.
type Machine struct {
	deps Deps
}

func NewMachine(deps Deps) *Machine {
	if deps.AnalyzeTimeout <= 0 {
		deps.AnalyzeTimeout = DefaultAnalyzeTimeout
	}
	if deps.CategoryTimeout <= 0 {
		deps.CategoryTimeout = DefaultCategoryTimeout
	}
	if deps.UploadTimeout <= 0 {
		deps.UploadTimeout = DefaultUploadTimeout
	}
	if deps.MaxImageDimension <= 0 {
		deps.MaxImageDimension = photo.DefaultMaxDimension
	}
	return &Machine{deps: deps}
}

type replies []Reply

func (r *replies) say(text string) {
	*r = append(*r, Reply{Text: text})
}

func (r *replies) sayf(format string, args ...any) {
	r.say(fmt.Sprintf(format, args...))
}

// Handle applies one event to the session and returns the replies.
func (m *Machine) Handle(ctx context.Context, s *Session, ev Event) []Reply {
	var r replies
	switch ev.Kind {
	case EventStart:
		m.start(ctx, s, &r)
	case EventText:
		m.text(ctx, s, ev.Text, &r)
	case EventPhoto:
		m.photo(ctx, s, ev.Photo, &r)
	case EventBack:
		m.back(ctx, s, &r)
	case EventContinue:
		m.skipAhead(s, &r)
	case EventEnd:
		m.discardImages(ctx, s)
		s.reset()
		r.say(MsgSessionEnded)
	case EventSession:
		m.showSession(s, &r)
	case EventHelp:
		r.say(HelpText())
	case EventProfile:
		m.profile(ctx, s, strings.TrimSpace(ev.Text), &r)
	case EventListings:
		m.recentListings(s, &r)
	}
	log.Debug().
		Int64("userId", s.UserID).
		Int("event", int(ev.Kind)).
		Str("state", s.State.String()).
		Msg("handled event")
	return r
}

// HelpText returns the command list.
func HelpText() string {
	return strings.TrimSpace(dedent.Dedent(MsgHelp))
}

func (m *Machine) currentProfile(s *Session) *listing.Profile {
	return m.deps.Catalog.GetProfile(s.ProfileID)
}

// storedProfileID returns the persisted selection, or the session's own
// when nothing is stored.
func (m *Machine) storedProfileID(s *Session) string {
	if m.deps.Profiles == nil {
		return s.ProfileID
	}
	id, err := m.deps.Profiles.GetProfile(s.UserID)
	if err != nil {
		log.Warn().Err(err).Int64("userId", s.UserID).Msg("failed to load profile selection")
		return s.ProfileID
	}
	if id == "" {
		return s.ProfileID
	}
	return id
}

func (m *Machine) start(ctx context.Context, s *Session, r *replies) {
	m.discardImages(ctx, s)
	s.reset()
	p := m.deps.Catalog.GetProfile(m.storedProfileID(s))
	s.ProfileID = p.ID
	s.Active = true

	if len(p.Fields) == 0 {
		s.State = StateAskingPhotos
		r.sayf(MsgNoFieldsSummary, p.Name)
		r.say(MsgPhotosPrompt)
		return
	}
	s.State = StateCollectingDetails
	r.say(p.Fields[0].Prompt)
}

func (m *Machine) text(ctx context.Context, s *Session, text string, r *replies) {
	switch s.State {
	case StateCollectingDetails:
		m.answerField(s, text, r)
	case StateAskingPhotos:
		r.say(MsgSendPhotosFirst)
	case StateAskingPrice:
		m.submitPrice(ctx, s, text, r)
	default:
		r.say(MsgSessionInactive)
	}
}

func (m *Machine) answerField(s *Session, text string, r *replies) {
	p := m.currentProfile(s)
	if s.FieldIndex >= len(p.Fields) {
		m.enterPhotos(s, p, r)
		return
	}
	field := p.Fields[s.FieldIndex]
	value := strings.TrimSpace(text)
	skip := value == "" || strings.EqualFold(value, skipToken)

	if skip && !field.Optional {
		if value == "" {
			r.sayf(MsgFieldRequired, field.Prompt)
		} else {
			r.sayf(MsgSkipNotAllowed, field.Prompt)
		}
		return
	}
	if skip {
		value = ""
	}
	s.Fields[field.Key] = value
	s.FieldIndex++

	if s.FieldIndex < len(p.Fields) {
		r.say(p.Fields[s.FieldIndex].Prompt)
		return
	}
	m.enterPhotos(s, p, r)
}

func (m *Machine) enterPhotos(s *Session, p *listing.Profile, r *replies) {
	s.FieldIndex = len(p.Fields)
	s.State = StateAskingPhotos
	r.sayf(MsgFieldsSummary, p.Name, fieldSummary(s, p))
	r.say(MsgPhotosPrompt)
}

func fieldSummary(s *Session, p *listing.Profile) string {
	lines := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		v, ok := s.Fields[f.Key]
		if !ok {
			continue
		}
		if v == "" {
			v = "-"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.Key, v))
	}
	return strings.Join(lines, "\n")
}

func (m *Machine) photo(ctx context.Context, s *Session, ph *Photo, r *replies) {
	switch s.State {
	case StateAskingPhotos, StateAskingPrice:
	case StateCollectingDetails:
		p := m.currentProfile(s)
		r.sayf(MsgPendingRequired, p.Fields[min(s.FieldIndex, len(p.Fields)-1)].Prompt)
		return
	default:
		r.say(MsgSessionInactive)
		return
	}

	if ph == nil || !photo.IsImage(ph.MIMEType, ph.Data) {
		r.say(MsgInvalidImage)
		return
	}
	prepared, err := photo.Prepare(ph.Data, m.deps.MaxImageDimension)
	if err != nil {
		log.Warn().Err(err).Int64("userId", s.UserID).Msg("failed to prepare photo")
		r.say(MsgInvalidImage)
		return
	}

	filename := fmt.Sprintf("%d-%d.jpg", s.UserID, len(s.Listing.Images)+1)
	uploadCtx, cancel := context.WithTimeout(ctx, m.deps.UploadTimeout)
	img, err := m.deps.Images.Upload(uploadCtx, prepared.Data, filename)
	cancel()
	if err != nil {
		log.Error().Err(err).Int64("userId", s.UserID).Msg("photo upload failed")
		r.say(MsgUploadFailed)
		return
	}
	s.Listing.Images = append(s.Listing.Images, Image{URL: img.URL, HostID: img.ID})
	s.State = StateAskingPrice
	log.Info().Int64("userId", s.UserID).Int("count", len(s.Listing.Images)).Msg("photo uploaded")

	if !s.Listing.AIDataFetched && !s.Listing.PhotoProcessing {
		if err := m.analyze(ctx, s, prepared); err != nil {
			log.Error().Err(err).Int64("userId", s.UserID).Msg("photo processing failed")
			r.say(MsgProcessingFailed)
			return
		}
		d := s.Listing.Derived
		r.sayf(MsgListingPreview, d.Title, d.WeightClass)
		if d.CategoryID != "" {
			r.sayf(MsgCategorySuggestion, d.CategoryName, d.CategoryID)
		}
	}

	if !s.Listing.PricePromptSent {
		s.Listing.PricePromptSent = true
		r.say(MsgPricePrompt)
		return
	}
	r.sayf(MsgPhotoAdded, len(s.Listing.Images))
}

// analyze runs the AI pipeline for the listing and commits its results in
// one step. Nothing is written to the session on failure.
func (m *Machine) analyze(ctx context.Context, s *Session, prepared *photo.Prepared) error {
	s.Listing.PhotoProcessing = true
	defer func() { s.Listing.PhotoProcessing = false }()

	p := m.currentProfile(s)
	req := llm.Request{
		ImageURL:    s.Listing.Images[0].URL,
		ImageData:   prepared.Data,
		MIMEType:    prepared.MIMEType,
		Hints:       hintsFromFields(s.Fields),
		ProfileHint: p.AIHint,
		Thresholds:  m.deps.Classifier.PromptThresholds(),
	}

	analyzeCtx, cancel := context.WithTimeout(ctx, m.deps.AnalyzeTimeout)
	defer cancel()
	res, err := m.deps.Analyzer.Analyze(analyzeCtx, req)
	if err != nil {
		return fmt.Errorf("analyze photo: %w", err)
	}
	log.Info().
		Int64("userId", s.UserID).
		Int64("inputTokens", res.Usage.InputTokens).
		Int64("outputTokens", res.Usage.OutputTokens).
		Float64("costUSD", res.Usage.CostUSD).
		Msg("photo analyzed")

	ai := llm.Normalize(res.Raw, m.deps.Classifier)
	description, err := m.deps.Catalog.BuildDescription(ai, s.Fields, p)
	if err != nil {
		return fmt.Errorf("build description: %w", err)
	}
	attrs := listing.Attributes(ai, s.Fields, p)
	derived := Derived{
		Title:               listing.BuildTitle(ai, s.Fields, p),
		Description:         description,
		Color:               attrs["color"],
		WeightClass:         ai.WeightClass,
		EstimatedWeightKg:   ai.EstimatedWeightKg,
		FulfillmentPolicyID: m.deps.Classifier.PolicyFor(ai.WeightClass),
	}
	if cat := m.suggestCategory(ctx, derived.Title); cat != nil {
		derived.CategoryID = cat.ID
		derived.CategoryName = cat.Name
	}

	s.Listing.AI = ai
	s.Listing.Derived = derived
	s.Listing.AIDataFetched = true
	return nil
}

func hintsFromFields(fields map[string]string) llm.Hints {
	hints := llm.Hints{
		Brand: fields["brand"],
		Model: fields["model"],
		Year:  fields["year"],
	}
	for k, v := range fields {
		switch k {
		case "brand", "model", "year":
			continue
		}
		if v == "" {
			continue
		}
		if hints.Extra == nil {
			hints.Extra = make(map[string]string)
		}
		hints.Extra[k] = v
	}
	return hints
}

func (m *Machine) suggestCategory(ctx context.Context, query string) *ebay.Category {
	if m.deps.Categories == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.deps.CategoryTimeout)
	defer cancel()
	cat, err := m.deps.Categories.Suggest(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("category suggestion failed")
		return nil
	}
	return cat
}

func parsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "€"))
	text = strings.Replace(text, ",", ".", 1)
	price, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, false
	}
	return price, true
}

func (m *Machine) submitPrice(ctx context.Context, s *Session, text string, r *replies) {
	price, ok := parsePrice(text)
	if !ok {
		r.say(MsgInvalidPrice)
		return
	}
	d := s.Listing.Derived
	if s.Listing.AI == nil || d.Title == "" || d.Description == "" || len(s.Listing.Images) == 0 {
		r.say(MsgMissingData)
		return
	}

	outcome, err := m.deps.Publisher.Publish(ctx, m.buildListing(s, price))
	if err != nil {
		log.Error().Err(err).Int64("userId", s.UserID).Msg("publish failed")
		r.sayf(MsgContactFailed, err)
		return
	}
	r.say(outcome.Message())
	if !outcome.OK {
		log.Warn().
			Int64("userId", s.UserID).
			Str("step", string(outcome.Step)).
			Int("status", outcome.Status).
			Msg("listing rejected")
		return
	}

	log.Info().
		Int64("userId", s.UserID).
		Str("sku", outcome.SKU).
		Str("listingId", outcome.ListingID).
		Msg("listing published")
	m.recordListing(s, outcome, price)
	s.ClearListing()
	s.State = StateAskingPhotos
	r.say(MsgListAnother)
}

func (m *Machine) buildListing(s *Session, price float64) ebay.Listing {
	attrs := listing.Attributes(s.Listing.AI, s.Fields, m.currentProfile(s))
	d := s.Listing.Derived
	return ebay.Listing{
		Title:               d.Title,
		Description:         d.Description,
		Brand:               attrs["brand"],
		Model:               attrs["model"],
		PartNumber:          attrs["mpn"],
		Color:               attrs["color"],
		Material:            attrs["material"],
		ProductType:         attrs["part_type"],
		ImageURLs:           s.ImageURLs(),
		Price:               price,
		FulfillmentPolicyID: d.FulfillmentPolicyID,
		CategoryID:          d.CategoryID,
	}
}

func (m *Machine) recordListing(s *Session, outcome *ebay.Outcome, price float64) {
	if m.deps.Listings == nil {
		return
	}
	err := m.deps.Listings.RecordListing(storage.ListingRecord{
		TelegramID:  s.UserID,
		SKU:         outcome.SKU,
		OfferID:     outcome.OfferID,
		ListingID:   outcome.ListingID,
		Title:       s.Listing.Derived.Title,
		Price:       price,
		WeightClass: string(s.Listing.Derived.WeightClass),
	})
	if err != nil {
		log.Warn().Err(err).Int64("userId", s.UserID).Msg("failed to record listing")
	}
}

// discardImages deletes the listing's images from the host. Failures are
// logged and otherwise ignored.
func (m *Machine) discardImages(ctx context.Context, s *Session) {
	for _, id := range s.HostIDs() {
		deleteCtx, cancel := context.WithTimeout(ctx, m.deps.UploadTimeout)
		if err := m.deps.Images.Delete(deleteCtx, id); err != nil {
			log.Warn().Err(err).Str("imageId", id).Msg("failed to delete image")
		}
		cancel()
	}
}

func (m *Machine) back(ctx context.Context, s *Session, r *replies) {
	if !s.Active {
		r.say(MsgNoActiveSession)
		return
	}
	if len(s.Listing.Images) > 0 {
		m.discardImages(ctx, s)
		s.ClearListing()
		s.State = StateAskingPhotos
		r.say(MsgReturningToPhoto)
		return
	}

	p := m.currentProfile(s)
	canPop := s.FieldIndex > 0 && len(p.Fields) > 0 &&
		(s.State == StateCollectingDetails || s.State == StateAskingPhotos)
	if !canPop {
		r.say(MsgNothingToGoBack)
		return
	}
	idx := min(s.FieldIndex, len(p.Fields)) - 1
	field := p.Fields[idx]
	delete(s.Fields, field.Key)
	s.FieldIndex = idx
	s.State = StateCollectingDetails
	r.sayf(MsgReturningToField, field.Prompt)
}

func (m *Machine) skipAhead(s *Session, r *replies) {
	if !s.Active {
		r.say(MsgNoActiveSession)
		return
	}
	switch s.State {
	case StateCollectingDetails:
		p := m.currentProfile(s)
		for _, f := range p.Fields[s.FieldIndex:] {
			if !f.Optional {
				r.sayf(MsgPendingRequired, f.Prompt)
				return
			}
		}
		for _, f := range p.Fields[s.FieldIndex:] {
			s.Fields[f.Key] = ""
		}
		m.enterPhotos(s, p, r)
	default:
		if len(s.Listing.Images) == 0 {
			r.say(MsgSendNextPhotos)
			return
		}
		r.say(MsgListingPending)
	}
}

func (m *Machine) showSession(s *Session, r *replies) {
	if !s.Active {
		r.say(MsgSessionInactive)
		return
	}
	p := m.currentProfile(s)
	var b strings.Builder
	fmt.Fprintf(&b, MsgSessionProfile, p.Name, p.ID)
	for _, f := range p.Fields {
		v, ok := s.Fields[f.Key]
		if !ok {
			continue
		}
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "\n%s: %s", f.Key, v)
	}
	fmt.Fprintf(&b, "\nPhotos: %d", len(s.Listing.Images))
	if s.Listing.AIDataFetched {
		d := s.Listing.Derived
		fmt.Fprintf(&b, "\nTitle: %s\nWeight class: %s", d.Title, d.WeightClass)
		if d.CategoryID != "" {
			fmt.Fprintf(&b, "\nCategory: %s (%s)", d.CategoryName, d.CategoryID)
		}
	}
	r.say(b.String())
}

func (m *Machine) profile(ctx context.Context, s *Session, arg string, r *replies) {
	if arg == "" {
		current := m.deps.Catalog.GetProfile(m.storedProfileID(s)).ID
		lines := make([]string, 0)
		for _, p := range m.deps.Catalog.ListProfiles() {
			line := fmt.Sprintf("%s - %s", p.ID, p.Name)
			if p.Description != "" {
				line += ": " + p.Description
			}
			if p.ID == current {
				line += " (current)"
			}
			lines = append(lines, line)
		}
		r.sayf(MsgProfileList, strings.Join(lines, "\n"))
		return
	}

	p, ok := m.deps.Catalog.FindProfile(arg)
	if !ok {
		r.sayf(MsgProfileUnknown, arg, strings.Join(m.deps.Catalog.IDs(), ", "))
		return
	}
	if m.deps.Profiles != nil {
		if err := m.deps.Profiles.SetProfile(s.UserID, p.ID); err != nil {
			log.Error().Err(err).Int64("userId", s.UserID).Msg("failed to save profile selection")
			r.say(MsgProfileSaveFail)
			return
		}
	}
	s.ProfileID = p.ID
	r.sayf(MsgProfileSet, p.Name)
	if s.Active {
		m.start(ctx, s, r)
	}
}

func (m *Machine) recentListings(s *Session, r *replies) {
	if m.deps.Listings == nil {
		r.say(MsgNoListings)
		return
	}
	records, err := m.deps.Listings.RecentListings(s.UserID, recentListingsLimit)
	if err != nil {
		log.Error().Err(err).Int64("userId", s.UserID).Msg("failed to load listings")
		r.say(MsgSomethingWentWrong)
		return
	}
	if len(records) == 0 {
		r.say(MsgNoListings)
		return
	}
	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = fmt.Sprintf("%s %s, %.2f EUR (listing %s)",
			rec.CreatedAt.Format("2006-01-02"), rec.Title, rec.Price, rec.ListingID)
	}
	r.sayf(MsgRecentListings, strings.Join(lines, "\n"))
}
