// Package postgres provides the durable receipt archive for the gate node.
// Every committed receipt is appended to a hash-chained table, so the full
// call history can be audited and any tampering with past receipts breaks
// the chain from that point on.
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/qugate/gate-node/executor"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	SSLMode           string
	MaxOpenConns      int
	MaxIdleConns      int
	SynchronousCommit bool // Set to false for high-throughput
}

// DefaultConfig returns a default configuration for local development
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              5432,
		User:              "postgres",
		Password:          "postgres",
		Database:          "qugate",
		SSLMode:           "disable",
		MaxOpenConns:      100,
		MaxIdleConns:      10,
		SynchronousCommit: false, // ACID tuning for throughput
	}
}

// Client wraps the PostgreSQL connection with archive operations
type Client struct {
	db *sql.DB
	mu sync.Mutex // serializes appends so the chain never forks
}

// NewClient creates a new PostgreSQL client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SET does not take bind parameters; use explicit whitelisted statements
	var setSyncQuery string
	if cfg.SynchronousCommit {
		setSyncQuery = "SET synchronous_commit = on"
	} else {
		setSyncQuery = "SET synchronous_commit = off"
	}
	if _, err := db.ExecContext(ctx, setSyncQuery); err != nil {
		return nil, fmt.Errorf("failed to set synchronous_commit: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// EnsureSchema creates the receipt table if it does not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS gate_receipts (
			ordinal       BIGINT PRIMARY KEY,
			call_id       TEXT NOT NULL,
			procedure     TEXT NOT NULL,
			caller        TEXT NOT NULL,
			gate_id       BIGINT NOT NULL,
			status        BIGINT NOT NULL,
			attached      BIGINT NOT NULL,
			fee_paid      BIGINT NOT NULL,
			burned        BIGINT NOT NULL,
			epoch         INT NOT NULL,
			transfers     JSONB NOT NULL,
			previous_hash TEXT NOT NULL,
			current_hash  TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_gate_receipts_gate_id ON gate_receipts (gate_id);
		CREATE INDEX IF NOT EXISTS idx_gate_receipts_caller ON gate_receipts (caller);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create receipt schema: %w", err)
	}
	return nil
}

// ArchivedReceipt is one row of the hash-chained archive
type ArchivedReceipt struct {
	Ordinal      uint64          `json:"ordinal"`
	CallID       string          `json:"call_id"`
	Procedure    string          `json:"procedure"`
	Caller       string          `json:"caller"`
	GateID       uint64          `json:"gate_id"`
	Status       int64           `json:"status"`
	Attached     uint64          `json:"attached"`
	FeePaid      uint64          `json:"fee_paid"`
	Burned       uint64          `json:"burned"`
	Epoch        uint16          `json:"epoch"`
	Transfers    json.RawMessage `json:"transfers"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
	CreatedAt    string          `json:"created_at"`
}

const receiptColumns = `ordinal, call_id, procedure, caller, gate_id, status, attached,
		fee_paid, burned, epoch, transfers, previous_hash, current_hash, created_at`

// transferRow is the JSON shape one transfer takes inside the archive
type transferRow struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// InsertReceipt appends a committed receipt to the chain
func (c *Client) InsertReceipt(ctx context.Context, r executor.Receipt) (*ArchivedReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var previousHash string
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT current_hash FROM gate_receipts ORDER BY ordinal DESC LIMIT 1), '')`,
	).Scan(&previousHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest hash: %w", err)
	}

	rows := make([]transferRow, len(r.Transfers))
	for i, t := range r.Transfers {
		rows[i] = transferRow{To: hex.EncodeToString(t.To[:]), Amount: t.Amount}
	}
	transfersJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfers: %w", err)
	}

	entry := ArchivedReceipt{
		Ordinal:      r.Ordinal,
		CallID:       r.CallID,
		Procedure:    r.Procedure.String(),
		Caller:       r.Caller.String(),
		GateID:       r.GateID,
		Status:       int64(r.Status),
		Attached:     r.Attached,
		FeePaid:      r.FeePaid,
		Burned:       r.Burned,
		Epoch:        r.Epoch,
		Transfers:    transfersJSON,
		PreviousHash: previousHash,
	}
	entry.CurrentHash = ComputeReceiptHash(&entry)

	query := `
		INSERT INTO gate_receipts (ordinal, call_id, procedure, caller, gate_id, status,
			attached, fee_paid, burned, epoch, transfers, previous_hash, current_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err = c.db.QueryRowContext(ctx, query,
		entry.Ordinal, entry.CallID, entry.Procedure, entry.Caller, entry.GateID,
		entry.Status, entry.Attached, entry.FeePaid, entry.Burned, entry.Epoch,
		entry.Transfers, entry.PreviousHash, entry.CurrentHash,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert receipt: %w", err)
	}

	return &entry, nil
}

// GetReceipt retrieves an archived receipt by ordinal
func (c *Client) GetReceipt(ctx context.Context, ordinal uint64) (*ArchivedReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM gate_receipts WHERE ordinal = $1`

	var entry ArchivedReceipt
	err := c.db.QueryRowContext(ctx, query, ordinal).Scan(
		&entry.Ordinal, &entry.CallID, &entry.Procedure, &entry.Caller, &entry.GateID,
		&entry.Status, &entry.Attached, &entry.FeePaid, &entry.Burned, &entry.Epoch,
		&entry.Transfers, &entry.PreviousHash, &entry.CurrentHash, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &entry, nil
}

// GetGateReceipts retrieves the archived receipts touching one gate,
// oldest first
func (c *Client) GetGateReceipts(ctx context.Context, gateID uint64, limit int) ([]ArchivedReceipt, error) {
	query := `SELECT ` + receiptColumns + `
		FROM gate_receipts WHERE gate_id = $1 ORDER BY ordinal ASC LIMIT $2`

	rows, err := c.db.QueryContext(ctx, query, gateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query gate receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// GetLatestReceipts retrieves the N most recent archived receipts
func (c *Client) GetLatestReceipts(ctx context.Context, limit int) ([]ArchivedReceipt, error) {
	query := `SELECT ` + receiptColumns + `
		FROM gate_receipts ORDER BY ordinal DESC LIMIT $1`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

func scanReceipts(rows *sql.Rows) ([]ArchivedReceipt, error) {
	var entries []ArchivedReceipt
	for rows.Next() {
		var entry ArchivedReceipt
		err := rows.Scan(
			&entry.Ordinal, &entry.CallID, &entry.Procedure, &entry.Caller, &entry.GateID,
			&entry.Status, &entry.Attached, &entry.FeePaid, &entry.Burned, &entry.Epoch,
			&entry.Transfers, &entry.PreviousHash, &entry.CurrentHash, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// IntegrityResult reports one broken link of the chain
type IntegrityResult struct {
	Ordinal      uint64 `json:"ordinal"`
	IsValid      bool   `json:"is_valid"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
}

// VerifyIntegrity walks the full chain and recomputes every link
func (c *Client) VerifyIntegrity(ctx context.Context) ([]IntegrityResult, error) {
	query := `SELECT ` + receiptColumns + ` FROM gate_receipts ORDER BY ordinal ASC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain: %w", err)
	}
	defer rows.Close()

	entries, err := scanReceipts(rows)
	if err != nil {
		return nil, err
	}

	var results []IntegrityResult
	previous := ""
	for i := range entries {
		e := &entries[i]
		expected := ComputeReceiptHash(e)
		valid := e.CurrentHash == expected && e.PreviousHash == previous
		if !valid {
			results = append(results, IntegrityResult{
				Ordinal:      e.Ordinal,
				IsValid:      false,
				ExpectedHash: expected,
				ActualHash:   e.CurrentHash,
			})
		}
		previous = e.CurrentHash
	}
	return results, nil
}

// ComputeReceiptHash computes the chain hash for one receipt. CreatedAt is
// excluded: the hash covers the deterministic receipt content only.
func ComputeReceiptHash(e *ArchivedReceipt) string {
	input := fmt.Sprintf("%d:%s:%s:%s:%d:%d:%d:%d:%d:%d:%s:%s",
		e.Ordinal, e.CallID, e.Procedure, e.Caller, e.GateID,
		e.Status, e.Attached, e.FeePaid, e.Burned, e.Epoch,
		string(e.Transfers), e.PreviousHash,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
