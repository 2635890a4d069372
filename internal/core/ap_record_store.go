package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APRecordStore persists AP records. Create is the atomic half of the builder's
// check-then-commit: the unique (company, order_key, invoice_key) constraint
// guarantees at most one record per pair even when two reconciliations race.
type APRecordStore interface {
	Exists(ctx context.Context, companyCode string, key IdempotencyKey) (bool, error)
	Create(ctx context.Context, companyCode string, rec *APRecord) error
	Get(ctx context.Context, companyCode, publicID string) (*APRecord, error)
	List(ctx context.Context, companyCode string, limit int) ([]APRecord, error)
	// ForCompany binds the store to a company so it can serve as an APRecordLookup.
	ForCompany(companyCode string) APRecordLookup
}

type apRecordStore struct {
	pool *pgxpool.Pool
}

// NewAPRecordStore constructs an APRecordStore backed by PostgreSQL.
func NewAPRecordStore(pool *pgxpool.Pool) APRecordStore {
	return &apRecordStore{pool: pool}
}

type companyLookup struct {
	store       *apRecordStore
	companyCode string
}

func (l companyLookup) Exists(ctx context.Context, key IdempotencyKey) (bool, error) {
	return l.store.Exists(ctx, l.companyCode, key)
}

func (s *apRecordStore) ForCompany(companyCode string) APRecordLookup {
	return companyLookup{store: s, companyCode: companyCode}
}

func (s *apRecordStore) Exists(ctx context.Context, companyCode string, key IdempotencyKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ap_records r
			JOIN companies c ON c.id = r.company_id
			WHERE c.company_code = $1 AND r.order_key = $2 AND r.invoice_key = $3
		)`,
		companyCode, key.OrderKey, key.InvoiceKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ap record %s: %w", key, err)
	}
	return exists, nil
}

// Create inserts a DRAFT record and its postings in one transaction and marks it
// CREATED. On success rec.ID, rec.PublicID, rec.Status and rec.CreatedAt are set.
func (s *apRecordStore) Create(ctx context.Context, companyCode string, rec *APRecord) error {
	if rec.Status != APStatusDraft {
		return fmt.Errorf("only DRAFT records can be created, got %s", rec.Status)
	}
	key := rec.Key()
	if !key.Valid() {
		return fmt.Errorf("ap record has no usable idempotency key (%q)", key.String())
	}

	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return err
	}

	publicID := uuid.NewString()
	var (
		id        int
		createdAt time.Time
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO ap_records (public_id, company_id, order_number, invoice_number, order_key, invoice_key,
		                        supplier_name, invoice_date, due_date, currency, total, confidence, status,
		                        source_email_ref, breakdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT ON CONSTRAINT ap_records_idempotency DO NOTHING
		RETURNING id, created_at`,
		publicID, companyID, rec.OrderNumber, rec.InvoiceNumber, key.OrderKey, key.InvoiceKey,
		rec.SupplierName, dateOrNil(rec.InvoiceDate), dateOrNil(rec.DueDate), rec.Currency, rec.Total,
		rec.Confidence.String(), string(APStatusCreated), rec.SourceEmailRef, breakdown,
	).Scan(&id, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("ap record %s: %w", key, ErrDuplicateAPRecord)
		}
		return fmt.Errorf("insert ap record: %w", err)
	}

	for i, p := range rec.LinePostings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ap_record_lines (ap_record_id, line_number, category, account_code, amount, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, i+1, string(p.Category), p.AccountCode, p.Amount, p.Description,
		); err != nil {
			return fmt.Errorf("insert ap record line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ap record: %w", err)
	}

	rec.ID = id
	rec.PublicID = publicID
	rec.Status = APStatusCreated
	rec.CreatedAt = &createdAt
	return nil
}

const apRecordColumns = `
	r.id, r.public_id::text, r.order_number, r.invoice_number, r.supplier_name,
	r.invoice_date, r.due_date, r.currency, r.total, r.confidence, r.status,
	r.source_email_ref, r.breakdown, r.created_at`

func scanAPRecord(row pgx.Row) (*APRecord, error) {
	var (
		rec        APRecord
		confidence string
		status     string
		breakdown  []byte
		createdAt  time.Time
	)
	if err := row.Scan(
		&rec.ID, &rec.PublicID, &rec.OrderNumber, &rec.InvoiceNumber, &rec.SupplierName,
		&rec.InvoiceDate, &rec.DueDate, &rec.Currency, &rec.Total, &confidence, &status,
		&rec.SourceEmailRef, &breakdown, &createdAt,
	); err != nil {
		return nil, err
	}
	c, err := ParseConfidence(confidence)
	if err != nil {
		return nil, err
	}
	rec.Confidence = c
	rec.Status = APStatus(status)
	rec.CreatedAt = &createdAt
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	return &rec, nil
}

func (s *apRecordStore) Get(ctx context.Context, companyCode, publicID string) (*APRecord, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, fmt.Errorf("ap record %q: %w", publicID, ErrAPRecordNotFound)
	}
	rec, err := scanAPRecord(s.pool.QueryRow(ctx, `
		SELECT `+apRecordColumns+`
		FROM ap_records r
		JOIN companies c ON c.id = r.company_id
		WHERE c.company_code = $1 AND r.public_id = $2`,
		companyCode, publicID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ap record %s: %w", publicID, ErrAPRecordNotFound)
		}
		return nil, fmt.Errorf("get ap record %s: %w", publicID, err)
	}

	lines, err := s.fetchPostings(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.LinePostings = lines
	return rec, nil
}

// List returns the company's most recent records, newest first, without postings.
func (s *apRecordStore) List(ctx context.Context, companyCode string, limit int) ([]APRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+apRecordColumns+`
		FROM ap_records r
		JOIN companies c ON c.id = r.company_id
		WHERE c.company_code = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2`,
		companyCode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ap records: %w", err)
	}
	defer rows.Close()

	var records []APRecord
	for rows.Next() {
		rec, err := scanAPRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ap record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *apRecordStore) fetchPostings(ctx context.Context, recordID int) ([]LinePosting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, account_code, amount, description
		FROM ap_record_lines
		WHERE ap_record_id = $1
		ORDER BY line_number`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch postings for ap record %d: %w", recordID, err)
	}
	defer rows.Close()

	var lines []LinePosting
	for rows.Next() {
		var (
			p        LinePosting
			category string
		)
		if err := rows.Scan(&category, &p.AccountCode, &p.Amount, &p.Description); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		p.Category = ChargeCategory(category)
		lines = append(lines, p)
	}
	return lines, rows.Err()
}
