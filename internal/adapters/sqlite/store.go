// Package sqlite implements ports.Store on a local SQLite database.
//
// The schema is versioned with golang-migrate using migrations embedded in
// the binary. The database is opened with a single connection so writes
// from the sync engine and the UI bridge serialize.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements ports.Store using SQLite.
type Store struct {
	path string
	now  func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

// NewStore creates a store for the database file at path.
// Call Initialize before use.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Initialize opens the database and applies pending migrations.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return unavailable("create database dir", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(s.path))
	if err != nil {
		return unavailable("open database", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return unavailable("ping database", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return unavailable("migrate database", err)
	}

	s.db = db
	return nil
}

// Close closes the database. The store can be initialized again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveTransaction inserts tx.
func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	payload := []byte(tx.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	synced := 0
	if tx.Synced {
		synced = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO transactions (id, timestamp, kind, payload, synced, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Timestamp, tx.Kind, payload, synced, tx.SyncedAt)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("save transaction %s: %w", tx.ID, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	return nil
}

// GetTransaction returns the record with the given id.
func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	db, err := s.conn()
	if err != nil {
		return domain.Transaction{}, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, timestamp, kind, payload, synced, synced_at
		FROM transactions
		WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// GetUnsyncedTransactions returns unsynced records by timestamp, then insertion order.
func (s *Store) GetUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, timestamp, kind, payload, synced, synced_at
		FROM transactions
		WHERE synced = 0
		ORDER BY timestamp ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// CountUnsynced returns the number of unsynced records.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return n, nil
}

// MarkTransactionSynced flags the record as synced, keeping the first synced_at.
func (s *Store) MarkTransactionSynced(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET synced_at = CASE WHEN synced = 1 THEN synced_at ELSE ? END,
		    synced = 1
		WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveProducts replaces the product cache in one transaction.
func (s *Store) SaveProducts(ctx context.Context, products []domain.Product) error {
	return s.replace(ctx, "products", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO products (id, name, price, barcode, uom, attrs)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range products {
			if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.Barcode, p.UOM, nullableJSON(p.Attrs)); err != nil {
				return fmt.Errorf("insert product %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// GetProducts returns the product cache ordered by id.
func (s *Store) GetProducts(ctx context.Context) ([]domain.Product, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, price, barcode, uom, attrs FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		var (
			p     domain.Product
			attrs []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Barcode, &p.UOM, &attrs); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Attrs = attrs
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveCart replaces the cart in one transaction.
func (s *Store) SaveCart(ctx context.Context, items []domain.CartItem) error {
	return s.replace(ctx, "cart", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cart (position, product_id, name, qty, rate, attrs)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, it := range items {
			if _, err := stmt.ExecContext(ctx, i, it.ProductID, it.Name, it.Qty, it.Rate, nullableJSON(it.Attrs)); err != nil {
				return fmt.Errorf("insert cart item %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetCart returns the cart in saved order.
func (s *Store) GetCart(ctx context.Context) ([]domain.CartItem, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT product_id, name, qty, rate, attrs FROM cart ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CartItem, 0)
	for rows.Next() {
		var (
			it    domain.CartItem
			attrs []byte
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.Rate, &attrs); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		it.Attrs = attrs
		out = append(out, it)
	}
	return out, rows.Err()
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	return s.replace(ctx, "cart", func(*sql.Tx) error { return nil })
}

// replace clears table and runs fill inside one SQL transaction.
func (s *Store) replace(ctx context.Context, table string, fill func(*sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	// table is one of the fixed collection names above.
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err := fill(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized: %w", domain.ErrStorageUnavailable)
	}
	return s.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		tx      domain.Transaction
		payload []byte
		synced  int
	)
	if err := row.Scan(&tx.ID, &tx.Timestamp, &tx.Kind, &payload, &synced, &tx.SyncedAt); err != nil {
		return domain.Transaction{}, err
	}
	tx.Payload = json.RawMessage(payload)
	tx.Synced = synced == 1
	return tx, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	// m.Close is not called: it would close db through the driver.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("instantiate migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func dsn(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

var _ ports.Store = (*Store)(nil)
