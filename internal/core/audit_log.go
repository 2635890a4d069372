package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditOutcome is the result of one reconciliation attempt.
type AuditOutcome string

const (
	AuditCreated AuditOutcome = "CREATED"
	AuditFailed  AuditOutcome = "FAILED"
	AuditDryRun  AuditOutcome = "DRY_RUN"
)

// AuditEntry is one row of the reconciliation audit trail.
type AuditEntry struct {
	CompanyCode    string
	OrderNumber    string
	InvoiceNumber  string
	Outcome        AuditOutcome
	Reason         BuildFailure
	Detail         string
	Confidence     Confidence
	CandidateCount int
	SourceEmailRef string
	APRecordID     int
	Breakdown      *ChargeBreakdown
}

// AuditLog appends reconciliation attempts. Entries are never updated.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type auditLog struct {
	pool *pgxpool.Pool
}

func NewAuditLog(pool *pgxpool.Pool) AuditLog {
	return &auditLog{pool: pool}
}

func (a *auditLog) Record(ctx context.Context, e AuditEntry) error {
	var breakdown []byte
	if e.Breakdown != nil {
		b, err := json.Marshal(e.Breakdown)
		if err != nil {
			return fmt.Errorf("encode breakdown: %w", err)
		}
		breakdown = b
	}

	var recordID *int
	if e.APRecordID > 0 {
		recordID = &e.APRecordID
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO reconciliation_audit (company_id, order_number, invoice_number, outcome, reason, detail,
		                                  confidence, candidate_count, source_email_ref, ap_record_id, breakdown)
		VALUES ((SELECT id FROM companies WHERE company_code = $1), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.CompanyCode, e.OrderNumber, e.InvoiceNumber, string(e.Outcome), string(e.Reason), e.Detail,
		e.Confidence.String(), e.CandidateCount, e.SourceEmailRef, recordID, breakdown,
	)
	if err != nil {
		return fmt.Errorf("record audit entry for order %s: %w", e.OrderNumber, err)
	}
	return nil
}
