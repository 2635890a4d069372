package app

import (
	"context"
	"errors"
)

var (
	// ErrInvalidRequest is returned when a request is missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMailboxNotConfigured is returned by ReconcileOrder when no mailbox or
	// extractor is wired.
	ErrMailboxNotConfigured = errors.New("mailbox or extraction backend not configured")
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// Implementations contain no presentation logic.
//
// Build failures (NO_MATCH, DUPLICATE, RECONCILIATION_GAP_TOO_LARGE,
// MISSING_ACCOUNT_CODE) are reported inside the returned result, never as the
// error. The error is reserved for invalid input and infrastructure failures.
type ApplicationService interface {
	// EvaluateMatch runs match, decompose and build over a caller-supplied order
	// and candidates. Nothing is persisted. The idempotency check runs only
	// when a company code is given.
	EvaluateMatch(ctx context.Context, req MatchRequest) (*MatchReport, error)

	// ReconcileOrder loads the order, searches the mailbox for its invoices,
	// extracts candidates and builds the AP record. Unless DryRun is set a
	// successful build is persisted. Every attempt is audited.
	ReconcileOrder(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error)

	// ListAPRecords returns the most recent AP records of a company.
	ListAPRecords(ctx context.Context, companyCode string, limit int) (*APRecordListResult, error)

	// GetAPRecord returns one AP record by its public id.
	GetAPRecord(ctx context.Context, companyCode, id string) (*APRecordResult, error)
}
