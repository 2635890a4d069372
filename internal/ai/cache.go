package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/logger"
	"invoice-reconciler/internal/mail"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type cachedExtraction struct {
	candidate core.RawInvoiceCandidate
	err       error
}

// CachingExtractor remembers extractions per message attachment and throttles
// calls to the wrapped extractor. Successes and ErrNotInvoice are cached;
// other failures are retried on the next call.
type CachingExtractor struct {
	next    Extractor
	cache   *cache.Cache
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewCachingExtractor wraps next. perSecond <= 0 disables throttling.
func NewCachingExtractor(next Extractor, ttl time.Duration, perSecond float64, burst int) *CachingExtractor {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &CachingExtractor{
		next:    next,
		cache:   cache.New(ttl, 2*ttl),
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.WithComponent("extractor.cache"),
	}
}

func (c *CachingExtractor) Extract(ctx context.Context, msg mail.Message, att mail.Attachment) (core.RawInvoiceCandidate, error) {
	key := msg.AttachmentRef(att)
	if v, ok := c.cache.Get(key); ok {
		hit := v.(cachedExtraction)
		c.log.Debug().Str("ref", key).Msg("extraction cache hit")
		return hit.candidate, hit.err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return core.RawInvoiceCandidate{}, fmt.Errorf("extraction throttle: %w", err)
	}

	cand, err := c.next.Extract(ctx, msg, att)
	if err == nil || errors.Is(err, ErrNotInvoice) {
		c.cache.SetDefault(key, cachedExtraction{candidate: cand, err: err})
	}
	return cand, err
}

// Len is the number of cached extractions.
func (c *CachingExtractor) Len() int {
	return c.cache.ItemCount()
}
