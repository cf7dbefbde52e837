// Package history keeps a local log of submitted demo transactions.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/yolodolo42/aaflow/internal/tx"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown record.
var ErrNotFound = errors.New("record not found")

// Store persists tx.Records in sqlite, keyed by record ID.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history DB under dataDir/history.db.
func Open(dataDir string) (*Store, error) {
	return OpenDSN(filepath.Join(dataDir, "history.db"))
}

// OpenDSN opens a history DB using the given sqlite DSN/path.
// Tests may pass ":memory:" to avoid touching disk.
func OpenDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A :memory: database lives per connection.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	chain TEXT NOT NULL,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	value TEXT NOT NULL,
	data TEXT NOT NULL,
	tx_hash TEXT,
	status TEXT NOT NULL,
	error TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_created_at ON transactions (created_at);
`)
	if err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put inserts r or updates its status, hash and error.
func (s *Store) Put(r *tx.Record) error {
	if s == nil || s.db == nil {
		return errors.New("history store not initialized")
	}
	if r == nil || r.ID == "" {
		return errors.New("record with ID is required")
	}

	var hash any
	if r.Hash != (common.Hash{}) {
		hash = r.Hash.Hex()
	}
	value := "0"
	if r.Value != nil {
		value = r.Value.String()
	}

	_, err := s.db.Exec(`
INSERT INTO transactions (id, chain, sender, recipient, value, data, tx_hash, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	tx_hash=excluded.tx_hash,
	status=excluded.status,
	error=excluded.error
`, r.ID, r.Chain, r.Sender.Hex(), r.Recipient.Hex(), value, hexutil.Encode(r.Data),
		hash, string(r.Status), r.Error, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	return nil
}

// Get returns one record.
func (s *Store) Get(id string) (*tx.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store not initialized")
	}
	row := s.db.QueryRow(`SELECT `+columns+` FROM transactions WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]*tx.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+columns+` FROM transactions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*tx.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const columns = `id, chain, sender, recipient, value, data, COALESCE(tx_hash, ''), status, COALESCE(error, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*tx.Record, error) {
	var r tx.Record
	var sender, recipient, value, data, hash, status, created string
	if err := sc.Scan(&r.ID, &r.Chain, &sender, &recipient, &value, &data, &hash, &status, &r.Error, &created); err != nil {
		return nil, err
	}

	r.Sender = common.HexToAddress(sender)
	r.Recipient = common.HexToAddress(recipient)
	r.Status = tx.Status(status)
	if hash != "" {
		r.Hash = common.HexToHash(hash)
	}

	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("record %s: bad value %q", r.ID, value)
	}
	r.Value = v

	decoded, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad data: %w", r.ID, err)
	}
	r.Data = decoded

	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		r.CreatedAt = ts
	}
	return &r, nil
}
