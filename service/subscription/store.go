package subscription

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// foreign_keys(1): enable FK constraints (disabled by default in SQLite)
	// _busy_timeout=5000: wait up to 5s when DB is locked (default=0, fails immediately)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not open a
	// second one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id TEXT PRIMARY KEY DEFAULT (hex(randomblob(16))),
			channel TEXT NOT NULL,
			pushEndpoint TEXT,
			p256dh TEXT,
			auth TEXT,
			vapidPrivateKey TEXT,
			telegramChatId TEXT,
			createdAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_channel ON targets(channel)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so other stores (the keystore) can share
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) AddTarget(t Target) (string, error) {
	var pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatID *string

	if t.WebPush != nil {
		pushEndpoint = &t.WebPush.Endpoint
		p256dh = &t.WebPush.P256dh
		auth = &t.WebPush.Auth
		vapidPrivateKey = &t.WebPush.VapidPrivateKey
	}
	if t.Telegram != nil {
		telegramChatID = &t.Telegram.ChatID
	}

	var id string
	err := s.db.QueryRow(`
		INSERT INTO targets (channel, pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatId)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id
	`, t.Channel, pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatID).Scan(&id)

	return id, err
}

func (s *Store) GetTargets() ([]Target, error) {
	rows, err := s.db.Query(`
		SELECT id, channel, pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatId, createdAt
		FROM targets
		ORDER BY createdAt
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, err := scanTarget(rows.Scan)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	return targets, rows.Err()
}

func (s *Store) GetTarget(id string) (*Target, error) {
	row := s.db.QueryRow(`
		SELECT id, channel, pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatId, createdAt
		FROM targets
		WHERE id = ?
	`, id)

	t, err := scanTarget(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteTarget(id string) error {
	_, err := s.db.Exec(`DELETE FROM targets WHERE id = ?`, id)
	return err
}

// CountTargets backs the host's permission answer: a host with zero targets
// has nowhere to deliver and reports notifications as denied.
func (s *Store) CountTargets() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM targets`).Scan(&n)
	return n, err
}

// FindTelegramTarget returns the target for the given chat, if registered.
func (s *Store) FindTelegramTarget(chatID string) (*Target, error) {
	row := s.db.QueryRow(`
		SELECT id, channel, pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatId, createdAt
		FROM targets
		WHERE channel = ? AND telegramChatId = ?
	`, ChannelTelegram, chatID)

	t, err := scanTarget(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTarget(scan func(...any) error) (Target, error) {
	var t Target
	var pushEndpoint, p256dh, auth, vapidPrivateKey, telegramChatID, createdAt sql.NullString

	if err := scan(&t.ID, &t.Channel, &pushEndpoint, &p256dh, &auth, &vapidPrivateKey, &telegramChatID, &createdAt); err != nil {
		return Target{}, err
	}
	if createdAt.Valid {
		// SQLite's CURRENT_TIMESTAMP is UTC text.
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
			t.CreatedAt = ts.UTC()
		}
	}

	if pushEndpoint.Valid {
		t.WebPush = &WebPushTarget{Endpoint: pushEndpoint.String}
		if p256dh.Valid {
			t.WebPush.P256dh = p256dh.String
		}
		if auth.Valid {
			t.WebPush.Auth = auth.String
		}
		if vapidPrivateKey.Valid {
			t.WebPush.VapidPrivateKey = vapidPrivateKey.String
		}
	}
	if telegramChatID.Valid {
		t.Telegram = &TelegramTarget{ChatID: telegramChatID.String}
	}

	return t, nil
}
