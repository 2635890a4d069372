package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invoice-reconciler/internal/ai"
	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/logger"
	"invoice-reconciler/internal/mail"

	"github.com/rs/zerolog"
)

// Deps are the collaborators of the application service. Mailbox and Extractor
// may be nil, in which case ReconcileOrder is unavailable; Rules may be nil to
// use the configured account codes for every company.
type Deps struct {
	Orders    core.OrderReader
	Records   core.APRecordStore
	Audit     core.AuditLog
	Rules     core.AccountRuleSource
	Mailbox   mail.Searcher
	Extractor ai.Extractor
	Engine    core.EngineConfig
	// MailQuery is the base mailbox search; the order number is appended.
	MailQuery mail.Query
}

type appService struct {
	orders    core.OrderReader
	records   core.APRecordStore
	audit     core.AuditLog
	rules     core.AccountRuleSource
	mailbox   mail.Searcher
	extractor ai.Extractor
	engine    core.EngineConfig
	mailQuery mail.Query
	log       zerolog.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(d Deps) ApplicationService {
	d.Engine = withEngineDefaults(d.Engine)
	return &appService{
		orders:    d.Orders,
		records:   d.Records,
		audit:     d.Audit,
		rules:     d.Rules,
		mailbox:   d.Mailbox,
		extractor: d.Extractor,
		engine:    d.Engine,
		mailQuery: d.MailQuery,
		log:       logger.WithComponent("app"),
	}
}

// withEngineDefaults fills the unset parts of cfg. A zero config gets the full
// defaults, including the 0.01 tolerance.
func withEngineDefaults(cfg core.EngineConfig) core.EngineConfig {
	def := core.DefaultEngineConfig()
	if cfg.ChargeRules == nil && cfg.AccountCodes == nil && cfg.Tolerance.IsZero() && cfg.GapCeilingRatio.IsZero() {
		return def
	}
	if cfg.ChargeRules == nil {
		cfg.ChargeRules = def.ChargeRules
	}
	if cfg.AccountCodes == nil {
		cfg.AccountCodes = def.AccountCodes
	}
	if !cfg.GapCeilingRatio.IsPositive() {
		cfg.GapCeilingRatio = def.GapCeilingRatio
	}
	return cfg
}

// EvaluateMatch runs the engine over caller-supplied data without persisting.
func (s *appService) EvaluateMatch(ctx context.Context, req MatchRequest) (*MatchReport, error) {
	if strings.TrimSpace(req.Order.OrderNumber) == "" {
		return nil, fmt.Errorf("%w: order.order_number is required", ErrInvalidRequest)
	}

	accounts := s.engine.AccountCodes
	var lookup core.APRecordLookup
	if req.CompanyCode != "" {
		var err error
		if accounts, err = s.accountsFor(ctx, req.CompanyCode); err != nil {
			return nil, err
		}
		if s.records != nil {
			lookup = s.records.ForCompany(req.CompanyCode)
		}
	}

	return s.evaluate(ctx, req.Order, req.Candidates, accounts, lookup)
}

// ReconcileOrder runs the full pipeline for one stored order.
func (s *appService) ReconcileOrder(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if req.CompanyCode == "" || strings.TrimSpace(req.OrderNumber) == "" {
		return nil, fmt.Errorf("%w: company code and order number are required", ErrInvalidRequest)
	}
	if s.mailbox == nil || s.extractor == nil {
		return nil, ErrMailboxNotConfigured
	}

	order, err := s.orders.GetOrder(ctx, req.CompanyCode, req.OrderNumber)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("company", req.CompanyCode).Str("order_number", order.OrderNumber).Logger()

	result := &ReconcileResult{CompanyCode: req.CompanyCode, DryRun: req.DryRun}
	candidates, err := s.collectCandidates(ctx, order, result, log)
	if err != nil {
		return nil, err
	}
	result.CandidateCount = len(candidates)

	accounts, err := s.accountsFor(ctx, req.CompanyCode)
	if err != nil {
		return nil, err
	}

	report, err := s.evaluate(ctx, order, candidates, accounts, s.records.ForCompany(req.CompanyCode))
	if err != nil {
		return nil, err
	}
	result.MatchReport = *report

	if result.OK() && !req.DryRun {
		err := s.records.Create(ctx, req.CompanyCode, result.Record)
		switch {
		case errors.Is(err, core.ErrDuplicateAPRecord):
			// Another reconciliation committed the same pair after our check.
			result.Record.Status = core.APStatusFailed
			result.Record.FailureReason = core.FailureDuplicate
			result.Record.LinePostings = nil
			result.Failure = &Failure{Reason: core.FailureDuplicate, Detail: "committed concurrently as " + result.Record.Key().String()}
		case err != nil:
			return nil, err
		}
	}

	s.recordAudit(ctx, req, result, log)

	ev := log.Info()
	if result.Failure != nil {
		ev = log.Warn().Str("reason", string(result.Failure.Reason)).Str("detail", result.Failure.Detail)
	}
	if result.Record != nil {
		ev = ev.Str("invoice_number", result.Record.InvoiceNumber).Str("status", string(result.Record.Status))
	}
	ev.Int("candidates", result.CandidateCount).Int("skipped", len(result.Skipped)).Bool("dry_run", req.DryRun).Msg("order reconciled")

	return result, nil
}

// ListAPRecords returns the most recent AP records of a company.
func (s *appService) ListAPRecords(ctx context.Context, companyCode string, limit int) (*APRecordListResult, error) {
	if companyCode == "" {
		return nil, fmt.Errorf("%w: company code is required", ErrInvalidRequest)
	}
	records, err := s.records.List(ctx, companyCode, limit)
	if err != nil {
		return nil, err
	}
	return &APRecordListResult{CompanyCode: companyCode, Records: records}, nil
}

// GetAPRecord returns one AP record by public id.
func (s *appService) GetAPRecord(ctx context.Context, companyCode, id string) (*APRecordResult, error) {
	rec, err := s.records.Get(ctx, companyCode, id)
	if err != nil {
		return nil, err
	}
	return &APRecordResult{Record: rec}, nil
}

// evaluate is the engine pipeline: match, decompose the best candidate, build.
// With no match the builder is not reached and the report carries NO_MATCH.
func (s *appService) evaluate(ctx context.Context, order core.Order, candidates []core.RawInvoiceCandidate, accounts core.AccountMap, lookup core.APRecordLookup) (*MatchReport, error) {
	report := &MatchReport{OrderNumber: order.OrderNumber, Matches: core.Match(order, candidates)}
	if report.Matches == nil {
		report.Matches = []core.MatchResult{}
	}

	best, ok := core.Best(report.Matches)
	if !ok {
		report.Failure = &Failure{
			Reason: core.FailureNoMatch,
			Detail: fmt.Sprintf("none of %d candidates reached WEAK confidence", len(candidates)),
		}
		return report, nil
	}

	classifier := core.NewChargeClassifier(s.engine.ChargeRules).WithProductSKUs(order.SKUs()...)
	breakdown := core.NewDecomposer(classifier, s.engine.Tolerance).Decompose(best.Candidate)
	report.Breakdown = &breakdown

	builder := core.NewAPRecordBuilder(accounts, lookup, s.engine.GapCeilingRatio)
	rec, err := builder.Build(ctx, best, breakdown)
	var buildErr *core.BuildError
	switch {
	case errors.As(err, &buildErr):
		report.Record = rec
		report.Failure = &Failure{Reason: buildErr.Reason, Detail: buildErr.Detail}
	case err != nil:
		return nil, err
	default:
		report.Record = rec
	}
	return report, nil
}

func (s *appService) accountsFor(ctx context.Context, companyCode string) (core.AccountMap, error) {
	if s.rules == nil {
		return s.engine.AccountCodes, nil
	}
	return s.rules.AccountMap(ctx, companyCode, s.engine.AccountCodes)
}

// collectCandidates searches the mailbox for the order number and extracts
// every PDF attachment. Attachments that fail to extract are skipped.
func (s *appService) collectCandidates(ctx context.Context, order core.Order, result *ReconcileResult, log zerolog.Logger) ([]core.RawInvoiceCandidate, error) {
	q := s.mailQuery
	q.Text = strings.TrimSpace(q.Text + " " + mail.AnyOf(order.OrderNumber, core.Normalize(order.OrderNumber).Canonical))

	messages, err := s.mailbox.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search mailbox for %s: %w", order.OrderNumber, err)
	}
	result.MessageCount = len(messages)

	var candidates []core.RawInvoiceCandidate
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			cand, err := s.extractor.Extract(ctx, msg, att)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				ref := msg.AttachmentRef(att)
				log.Warn().Err(err).Str("ref", ref).Str("filename", att.Filename).
					Bool("expected", ai.IsSkippable(err)).Msg("attachment skipped")
				result.Skipped = append(result.Skipped, SkippedAttachment{Ref: ref, Filename: att.Filename, Reason: err.Error()})
				continue
			}
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// recordAudit appends the attempt to the audit trail. Audit failures are
// logged, they do not undo a committed record.
func (s *appService) recordAudit(ctx context.Context, req ReconcileRequest, result *ReconcileResult, log zerolog.Logger) {
	if s.audit == nil {
		return
	}
	entry := core.AuditEntry{
		CompanyCode:    req.CompanyCode,
		OrderNumber:    result.OrderNumber,
		CandidateCount: result.CandidateCount,
		Breakdown:      result.Breakdown,
	}
	switch {
	case result.Failure != nil:
		entry.Outcome = core.AuditFailed
		entry.Reason = result.Failure.Reason
		entry.Detail = result.Failure.Detail
	case req.DryRun:
		entry.Outcome = core.AuditDryRun
	default:
		entry.Outcome = core.AuditCreated
	}
	if rec := result.Record; rec != nil {
		entry.InvoiceNumber = rec.InvoiceNumber
		entry.Confidence = rec.Confidence
		entry.SourceEmailRef = rec.SourceEmailRef
		entry.APRecordID = rec.ID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Error().Err(err).Msg("failed to write audit entry")
	}
}
