package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			nickname TEXT NOT NULL,
			handle TEXT NOT NULL,
			fan_since TEXT NOT NULL,
			nationality TEXT NOT NULL,
			email TEXT,
			image_path TEXT,
			amount INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_paid INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_email_amount ON members(email, amount)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// CreateMember inserts a new member record
func (s *Storage) CreateMember(nm NewMember) (*Member, error) {
	id := uuid.NewString()
	now := time.Now().Unix()

	_, err := s.db.Exec(
		`INSERT INTO members (id, nickname, handle, fan_since, nationality, email, image_path, amount, is_active, is_paid, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?)`,
		id, nm.Nickname, nm.Handle, nm.FanSince, nm.Nationality, nm.Email, nm.ImagePath, nm.Amount, now,
	)
	if err != nil {
		return nil, err
	}

	return &Member{
		ID:          id,
		Nickname:    nm.Nickname,
		Handle:      nm.Handle,
		FanSince:    nm.FanSince,
		Nationality: nm.Nationality,
		Email:       nm.Email,
		ImagePath:   nm.ImagePath,
		Amount:      nm.Amount,
		IsActive:    true,
		CreatedAt:   time.Unix(now, 0),
	}, nil
}

// GetMember returns a member by ID
func (s *Storage) GetMember(id string) (*Member, error) {
	row := s.db.QueryRow(
		`SELECT id, nickname, handle, fan_since, nationality, email, image_path, amount, is_active, is_paid, created_at
		 FROM members WHERE id = ?`,
		id,
	)
	return scanMember(row)
}

// FindByEmailAmount resolves a member by payer email and expected amount.
// Webhook fallback path; when several members share the pair, the most
// recently created one wins.
func (s *Storage) FindByEmailAmount(email string, amount int64) (*Member, error) {
	row := s.db.QueryRow(
		`SELECT id, nickname, handle, fan_since, nationality, email, image_path, amount, is_active, is_paid, created_at
		 FROM members WHERE email = ? AND amount = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		email, amount,
	)
	return scanMember(row)
}

// MarkPaid transitions a member to paid. The update is conditional on the
// member being unpaid and active, so concurrent confirmations for the same
// member result in exactly one effective transition. Returns true iff this
// call performed the transition.
func (s *Storage) MarkPaid(id string) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE members SET is_paid = 1 WHERE id = ? AND is_paid = 0 AND is_active = 1",
		id,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SetActive updates the externally managed eligibility flag
func (s *Storage) SetActive(id string, active bool) error {
	result, err := s.db.Exec(
		"UPDATE members SET is_active = ? WHERE id = ?",
		active, id,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	var email, imagePath sql.NullString
	var createdAt int64

	err := row.Scan(&m.ID, &m.Nickname, &m.Handle, &m.FanSince, &m.Nationality,
		&email, &imagePath, &m.Amount, &m.IsActive, &m.IsPaid, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.Email = email.String
	m.ImagePath = imagePath.String
	m.CreatedAt = time.Unix(createdAt, 0)

	return &m, nil
}
