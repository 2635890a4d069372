package app

import "invoice-reconciler/internal/core"

// MatchRequest is the input of EvaluateMatch.
type MatchRequest struct {
	// CompanyCode is optional. When set, company account rules apply and
	// existing AP records are consulted for duplicates.
	CompanyCode string                     `json:"company_code,omitempty"`
	Order       core.Order                 `json:"order"`
	Candidates  []core.RawInvoiceCandidate `json:"candidates"`
}

// ReconcileRequest is the input of ReconcileOrder.
type ReconcileRequest struct {
	CompanyCode string `json:"company_code"`
	OrderNumber string `json:"order_number"`
	DryRun      bool   `json:"dry_run"`
}
