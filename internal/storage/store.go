package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const refreshTokenCredential = "ebay_refresh_token"

// VisionCacheEntry represents a cached vision analysis response.
type VisionCacheEntry struct {
	Raw string
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// ListingRecord is a published listing.
type ListingRecord struct {
	TelegramID  int64
	SKU         string
	OfferID     string
	ListingID   string
	Title       string
	Price       float64
	WeightClass string
	CreatedAt   time.Time
}

// Store defines the interface for persisted bot data.
type Store interface {
	Close() error

	// Profile selection per user
	GetProfile(telegramID int64) (string, error)
	SetProfile(telegramID int64, profileID string) error

	// Marketplace refresh token, encrypted at rest
	GetRefreshToken() (string, error)
	SaveRefreshToken(token string) error

	// Vision cache methods
	GetVisionCache(key string) (*VisionCacheEntry, error)
	SetVisionCache(key string, entry *VisionCacheEntry) error

	// Allowed users methods
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)

	// Published listings
	RecordListing(rec ListingRecord) error
	RecentListings(telegramID int64, limit int) ([]ListingRecord, error)
}

// SQLiteStore implements Store using SQLite with encrypted credentials.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based store.
// The encryptionKey is used to encrypt/decrypt credentials.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Only works once the file exists
	_ = os.Chmod(dbPath, 0600)

	return store, nil
}

var schema = []struct {
	name  string
	query string
}{
	{"user_settings", `
	CREATE TABLE IF NOT EXISTS user_settings (
		telegram_id INTEGER PRIMARY KEY,
		profile_id TEXT
	);`},
	{"credentials", `
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`},
	{"vision_cache", `
	CREATE TABLE IF NOT EXISTS vision_cache (
		cache_key TEXT PRIMARY KEY,
		raw_response TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`},
	{"allowed_users", `
	CREATE TABLE IF NOT EXISTS allowed_users (
		telegram_id INTEGER PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		added_by INTEGER
	);`},
	{"listings", `
	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL,
		sku TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		listing_id TEXT,
		title TEXT NOT NULL,
		price REAL NOT NULL,
		weight_class TEXT,
		created_at DATETIME NOT NULL
	);`},
}

func (s *SQLiteStore) init() error {
	for _, t := range schema {
		if _, err := s.db.Exec(t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetProfile returns the user's selected profile ID, or "" if none.
func (s *SQLiteStore) GetProfile(telegramID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var profileID sql.NullString
	err := s.db.QueryRow(
		"SELECT profile_id FROM user_settings WHERE telegram_id = ?",
		telegramID,
	).Scan(&profileID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query profile: %w", err)
	}
	return profileID.String, nil
}

// SetProfile stores the user's profile selection.
func (s *SQLiteStore) SetProfile(telegramID int64, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_settings (telegram_id, profile_id)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			profile_id = excluded.profile_id
	`, telegramID, profileID)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	return nil
}

// GetRefreshToken returns the stored marketplace refresh token, or "" if none.
func (s *SQLiteStore) GetRefreshToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRow(
		"SELECT encrypted_value FROM credentials WHERE name = ?",
		refreshTokenCredential,
	).Scan(&encrypted)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query refresh token: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return string(plaintext), nil
}

// SaveRefreshToken encrypts and stores the marketplace refresh token.
func (s *SQLiteStore) SaveRefreshToken(token string) error {
	encrypted, err := Encrypt([]byte(token), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO credentials (name, encrypted_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			updated_at = excluded.updated_at
	`, refreshTokenCredential, encrypted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetVisionCache retrieves a cached vision response by key.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetVisionCache(key string) (*VisionCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry VisionCacheEntry
	err := s.db.QueryRow(
		"SELECT raw_response FROM vision_cache WHERE cache_key = ?",
		key,
	).Scan(&entry.Raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vision cache: %w", err)
	}
	return &entry, nil
}

// SetVisionCache stores a vision response in the cache.
func (s *SQLiteStore) SetVisionCache(key string, entry *VisionCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO vision_cache (cache_key, raw_response)
		VALUES (?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			raw_response = excluded.raw_response,
			created_at = CURRENT_TIMESTAMP
	`, key, entry.Raw)
	if err != nil {
		return fmt.Errorf("failed to cache vision result: %w", err)
	}
	return nil
}

// IsUserAllowed checks if a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed user: %w", err)
	}
	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = CURRENT_TIMESTAMP
	`, telegramID, addedBy)
	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}
	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all users in the whitelist.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &user.AddedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// RecordListing appends a published listing to the log.
func (s *SQLiteStore) RecordListing(rec ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO listings (telegram_id, sku, offer_id, listing_id, title, price, weight_class, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TelegramID, rec.SKU, rec.OfferID, rec.ListingID, rec.Title, rec.Price, rec.WeightClass, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record listing: %w", err)
	}
	return nil
}

// RecentListings returns the user's latest published listings, newest first.
func (s *SQLiteStore) RecentListings(telegramID int64, limit int) ([]ListingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT telegram_id, sku, offer_id, listing_id, title, price, weight_class, created_at
		FROM listings WHERE telegram_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []ListingRecord
	for rows.Next() {
		var rec ListingRecord
		var listingID, weightClass sql.NullString
		if err := rows.Scan(&rec.TelegramID, &rec.SKU, &rec.OfferID, &listingID, &rec.Title, &rec.Price, &weightClass, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		rec.ListingID = listingID.String
		rec.WeightClass = weightClass.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
