package app

import (
	"context"
	"fmt"
	"os"

	"invoice-reconciler/internal/ai"
	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/db"
	"invoice-reconciler/internal/logger"
	"invoice-reconciler/internal/mail"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime is a wired application service together with the resources it owns.
type Runtime struct {
	Service ApplicationService
	Pool    *pgxpool.Pool
	closers []func() error
}

// Close releases the extractor connection and the database pool.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// Open connects to the database and wires every collaborator from cfg. The
// mailbox and extractor are optional: when their credentials are missing
// ReconcileOrder returns ErrMailboxNotConfigured and everything else works.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	log := logger.WithComponent("wire")

	engine, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Pool: pool}
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

	deps := Deps{
		Orders:  core.NewOrderReader(pool),
		Records: core.NewAPRecordStore(pool),
		Audit:   core.NewAuditLog(pool),
		Rules:   core.NewRuleEngine(pool),
		Engine:  engine,
		MailQuery: mail.Query{
			Text:       cfg.Mail.Query,
			Label:      cfg.Mail.Label,
			MaxResults: cfg.Mail.MaxResults,
		},
	}

	if mailConfigured(cfg.Mail) {
		client, err := mail.NewClient(ctx, mail.AuthConfig{
			CredentialsFile:    cfg.Mail.CredentialsFile,
			TokenFile:          cfg.Mail.TokenFile,
			ServiceAccountFile: cfg.Mail.ServiceAccountFile,
			User:               cfg.Mail.User,
		})
		if err != nil {
			log.Warn().Err(err).Msg("mailbox unavailable; reconcile disabled")
		} else {
			deps.Mailbox = client
		}
	} else {
		log.Info().Msg("no mail credentials configured; reconcile disabled")
	}

	extractor, closeExtractor, err := NewExtractor(ctx, cfg.Extraction)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Extraction.Backend).Msg("extractor unavailable; reconcile disabled")
	} else {
		deps.Extractor = extractor
		rt.closers = append(rt.closers, closeExtractor)
	}

	rt.Service = NewAppService(deps)
	return rt, nil
}

func mailConfigured(c config.MailConfig) bool {
	if c.ServiceAccountFile != "" {
		return true
	}
	if c.CredentialsFile == "" {
		return false
	}
	_, err := os.Stat(c.CredentialsFile)
	return err == nil
}

// NewExtractor builds the configured extraction backend wrapped in the
// per-attachment cache and rate limiter.
func NewExtractor(ctx context.Context, c config.ExtractionConfig) (ai.Extractor, func() error, error) {
	var (
		next    ai.Extractor
		closeFn = func() error { return nil }
	)
	switch c.Backend {
	case config.BackendDocumentAI:
		e, err := ai.NewDocumentAIExtractor(ctx, ai.DocumentAIConfig{
			ProjectID:       c.ProjectID,
			Location:        c.Location,
			ProcessorID:     c.ProcessorID,
			CredentialsFile: c.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		next, closeFn = e, e.Close
	case config.BackendOpenAI, "":
		if c.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("extraction.openai_api_key (OPENAI_API_KEY) is not set")
		}
		e, err := ai.NewOpenAIExtractor(c.OpenAIAPIKey, c.OpenAIModel)
		if err != nil {
			return nil, nil, err
		}
		next = e
	default:
		return nil, nil, fmt.Errorf("unknown extraction backend %q", c.Backend)
	}
	return ai.NewCachingExtractor(next, c.CacheTTL, c.RatePerSecond, c.Burst), closeFn, nil
}
