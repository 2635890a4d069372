package app

import "invoice-reconciler/internal/core"

// Failure is the structured reason no AP record was produced.
type Failure struct {
	Reason core.BuildFailure `json:"reason"`
	Detail string            `json:"detail,omitempty"`
}

// MatchReport is the outcome of matching one order against its candidates.
// Breakdown is present whenever a candidate was selected, including failed builds.
type MatchReport struct {
	OrderNumber string                `json:"order_number"`
	Matches     []core.MatchResult    `json:"matches"`
	Breakdown   *core.ChargeBreakdown `json:"breakdown,omitempty"`
	Record      *core.APRecord        `json:"ap_record,omitempty"`
	Failure     *Failure              `json:"failure,omitempty"`
}

// OK reports whether an AP record was built.
func (r *MatchReport) OK() bool {
	return r.Failure == nil && r.Record != nil
}

// SkippedAttachment is an attachment that produced no candidate.
type SkippedAttachment struct {
	Ref      string `json:"ref"`
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ReconcileResult is returned by ReconcileOrder.
type ReconcileResult struct {
	MatchReport
	CompanyCode    string              `json:"company_code"`
	DryRun         bool                `json:"dry_run"`
	MessageCount   int                 `json:"message_count"`
	CandidateCount int                 `json:"candidate_count"`
	Skipped        []SkippedAttachment `json:"skipped,omitempty"`
}

// APRecordListResult is returned by ListAPRecords.
type APRecordListResult struct {
	CompanyCode string          `json:"company_code"`
	Records     []core.APRecord `json:"ap_records"`
}

// APRecordResult is returned by GetAPRecord.
type APRecordResult struct {
	Record *core.APRecord `json:"ap_record"`
}
