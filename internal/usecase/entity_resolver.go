package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/service/cache"
	applogger "AlphaNebula/pkg/logger"
)

var resolverTracer = otel.Tracer("alphanebula.usecase.resolver")

// ResolverConfig holds the decision thresholds.
type ResolverConfig struct {
	// AutoLinkThreshold is compared against cosine similarity alone.
	AutoLinkThreshold float64
	// LexicalThreshold links on blocking score without reranking.
	LexicalThreshold float64
	BlockingK        int
	FallbackK        int
	ReviewCandidates int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		AutoLinkThreshold: 0.90,
		LexicalThreshold:  0.97,
		BlockingK:         50,
		FallbackK:         10,
		ReviewCandidates:  5,
	}
}

// EntityResolver walks a mention through exact lookup, blocking and reranking and
// either links it to a ticker or parks it in the review queue.
type EntityResolver struct {
	aliases  domrepo.AliasStore
	review   domrepo.ReviewQueue
	index    service.BlockingIndex
	reranker service.Reranker
	cache    *cache.Loader
	metrics  domrepo.Metrics
	log      *applogger.Logger
	cfg      ResolverConfig
}

func NewEntityResolver(
	aliases domrepo.AliasStore,
	review domrepo.ReviewQueue,
	index service.BlockingIndex,
	reranker service.Reranker,
	loader *cache.Loader,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg ResolverConfig,
) *EntityResolver {
	d := DefaultResolverConfig()
	if cfg.AutoLinkThreshold <= 0 || cfg.AutoLinkThreshold > 1 {
		cfg.AutoLinkThreshold = d.AutoLinkThreshold
	}
	if cfg.LexicalThreshold <= 0 {
		cfg.LexicalThreshold = d.LexicalThreshold
	}
	if cfg.BlockingK <= 0 {
		cfg.BlockingK = d.BlockingK
	}
	if cfg.FallbackK <= 0 {
		cfg.FallbackK = d.FallbackK
	}
	if cfg.ReviewCandidates <= 0 {
		cfg.ReviewCandidates = d.ReviewCandidates
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &EntityResolver{
		aliases:  aliases,
		review:   review,
		index:    index,
		reranker: reranker,
		cache:    loader,
		metrics:  metrics,
		log:      l.Component("resolver"),
		cfg:      cfg,
	}
}

var _ service.Resolver = (*EntityResolver)(nil)

// normalizeMention validates a mention and fills defaults.
func normalizeMention(m models.RawMention) (models.RawMention, error) {
	if models.NormalizeName(m.RawName) == "" {
		return m, models.NewValidationError("raw_name", "must contain at least one letter or digit")
	}
	m.RawName = strings.TrimSpace(m.RawName)
	if m.EntityType == "" {
		m.EntityType = models.EntityTypeAlias
	}
	m.EntityType = models.EntityType(strings.ToUpper(string(m.EntityType)))
	if !m.EntityType.Valid() {
		return m, models.NewValidationError("entity_type", "must be one of SUBSIDIARY, SUPPLIER, ALIAS")
	}
	if m.Source = strings.TrimSpace(m.Source); m.Source == "" {
		m.Source = "unknown"
	}
	return m, nil
}

// ResolveCached serves repeated (raw_name, source) lookups from the TTL cache.
func (r *EntityResolver) ResolveCached(ctx context.Context, mention models.RawMention) (models.ResolutionResult, error) {
	m, err := normalizeMention(mention)
	if err != nil {
		return models.ResolutionResult{}, err
	}
	if r.cache == nil {
		return r.Resolve(ctx, m)
	}
	return cache.GetOrCompute(ctx, r.cache, cache.ResolveKey(m.RawName, m.Source), func(ctx context.Context) (models.ResolutionResult, error) {
		return r.Resolve(ctx, m)
	})
}

// Resolve runs RECEIVED -> BLOCKED -> RERANKED -> {AUTO_LINKED, QUEUED_FOR_REVIEW}.
func (r *EntityResolver) Resolve(ctx context.Context, mention models.RawMention) (res models.ResolutionResult, err error) {
	ctx, span := resolverTracer.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("raw_name", mention.RawName),
			attribute.String("source", mention.Source),
		),
	)
	start := time.Now()
	defer func() {
		r.metrics.RecordLatency("resolve", time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if models.IsValidation(err) {
				r.metrics.RecordError("resolve_validation")
			} else {
				r.metrics.RecordError("resolve")
			}
		} else {
			span.SetAttributes(
				attribute.String("status", string(res.Status)),
				attribute.String("method", string(res.Method)),
				attribute.Float64("confidence", res.Confidence),
			)
			r.metrics.RecordResolution(string(res.Status), string(res.Method))
		}
		span.End()
	}()

	m, err := normalizeMention(mention)
	if err != nil {
		return models.ResolutionResult{}, err
	}

	// RECEIVED
	if hit, err := r.exact(ctx, m); err != nil || hit != nil {
		if err != nil {
			return models.ResolutionResult{}, err
		}
		return linked(m, *hit, 1.0, models.MethodExact), nil
	}

	// BLOCKED
	scored := r.index.Candidates(m.RawName, r.cfg.BlockingK)
	candidates := make([]models.ResolutionCandidate, 0, len(scored))
	for _, s := range scored {
		candidates = append(candidates, models.CandidateFromAlias(s.Alias, s.Score))
	}
	span.SetAttributes(attribute.Int("blocking_candidates", len(candidates)))

	if top, ok := r.lexicalWinner(scored); ok {
		stored, err := r.link(ctx, m, top.Alias.Ticker, top.Score, models.SourceAutomaticFuzzy)
		if err != nil {
			return models.ResolutionResult{}, err
		}
		res := linked(m, stored, top.Score, models.MethodLexical)
		res.Candidates = head(candidates, r.cfg.ReviewCandidates)
		return res, nil
	}

	// RERANKED
	ranked, err := r.rank(ctx, m.RawName, candidates)
	if err != nil {
		r.log.Warn("rerank failed, queueing for review",
			applogger.String("raw_name", m.RawName),
			applogger.Error(err),
		)
		r.metrics.RecordError("rerank")
		return r.enqueue(ctx, m, candidates)
	}

	if len(ranked) > 0 && ranked[0].SemanticScore >= r.cfg.AutoLinkThreshold {
		top := ranked[0]
		stored, err := r.link(ctx, m, top.Ticker, top.SemanticScore, models.SourceAutomaticVector)
		if err != nil {
			return models.ResolutionResult{}, err
		}
		res := linked(m, stored, top.SemanticScore, models.MethodSemantic)
		res.Candidates = head(ranked, r.cfg.ReviewCandidates)
		return res, nil
	}

	// QUEUED_FOR_REVIEW
	return r.enqueue(ctx, m, ranked)
}

// exact finds a stored mapping for the normalized name. A row with the mention's entity
// type wins; otherwise rows of any type qualify only if they agree on the ticker.
func (r *EntityResolver) exact(ctx context.Context, m models.RawMention) (*models.EntityAlias, error) {
	a, err := r.aliases.FindExact(ctx, m.RawName, m.EntityType)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	if a != nil {
		return a, nil
	}
	rows, err := r.aliases.FindByName(ctx, m.RawName)
	if err != nil {
		return nil, fmt.Errorf("name lookup: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	best := rows[0]
	for _, row := range rows[1:] {
		if !strings.EqualFold(row.Ticker, best.Ticker) {
			return nil, nil
		}
		if row.Confidence > best.Confidence {
			best = row
		}
	}
	return &best, nil
}

// lexicalWinner returns the top blocking hit when it clears the lexical threshold and
// no other ticker shares its score.
func (r *EntityResolver) lexicalWinner(scored []service.ScoredAlias) (service.ScoredAlias, bool) {
	if len(scored) == 0 || scored[0].Score < r.cfg.LexicalThreshold {
		return service.ScoredAlias{}, false
	}
	top := scored[0]
	for _, s := range scored[1:] {
		if s.Score < top.Score {
			break
		}
		if !strings.EqualFold(s.Alias.Ticker, top.Alias.Ticker) {
			return service.ScoredAlias{}, false
		}
	}
	return top, true
}

// rank reranks blocking candidates and, when they cannot clear the threshold, widens the
// pool with the nearest known aliases by embedding.
func (r *EntityResolver) rank(ctx context.Context, rawName string, candidates []models.ResolutionCandidate) ([]models.ResolutionCandidate, error) {
	ranked, err := r.reranker.Rerank(ctx, rawName, candidates)
	if err != nil {
		return nil, err
	}
	if len(ranked) > 0 && ranked[0].SemanticScore >= r.cfg.AutoLinkThreshold {
		return ranked, nil
	}

	nearest, err := r.reranker.Nearest(ctx, rawName, r.cfg.FallbackK)
	if err != nil {
		return nil, err
	}
	if len(nearest) == 0 {
		return ranked, nil
	}
	type key struct {
		name, ticker string
		et           models.EntityType
	}
	seen := make(map[key]bool, len(ranked)+len(nearest))
	merged := make([]models.ResolutionCandidate, 0, len(ranked)+len(nearest))
	for _, c := range append(ranked, nearest...) {
		k := key{models.NormalizeName(c.RawName), strings.ToUpper(c.Ticker), c.EntityType}
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, c)
	}
	return r.reranker.Rerank(ctx, rawName, merged)
}

// link writes the automatic mapping and makes it visible to later lookups.
func (r *EntityResolver) link(ctx context.Context, m models.RawMention, ticker string, confidence float64, source models.AliasSource) (models.EntityAlias, error) {
	stored, outcome, err := r.aliases.Upsert(ctx, models.EntityAlias{
		RawName:    m.RawName,
		Ticker:     ticker,
		EntityType: m.EntityType,
		Confidence: confidence,
		Source:     source,
	})
	if err != nil {
		return models.EntityAlias{}, fmt.Errorf("link %q: %w", m.RawName, err)
	}
	if outcome != domrepo.OutcomeUnchanged {
		r.index.Add(stored)
		r.reranker.Observe(stored)
	}
	r.log.Debug("auto-linked",
		applogger.String("raw_name", m.RawName),
		applogger.String("ticker", stored.Ticker),
		applogger.String("source", string(source)),
		applogger.Float64("confidence", confidence),
		applogger.String("outcome", string(outcome)),
	)
	return stored, nil
}

func (r *EntityResolver) enqueue(ctx context.Context, m models.RawMention, ranked []models.ResolutionCandidate) (models.ResolutionResult, error) {
	top := head(ranked, r.cfg.ReviewCandidates)
	item, err := r.review.Enqueue(ctx, models.ReviewItem{
		RawName:       m.RawName,
		Source:        m.Source,
		EntityType:    m.EntityType,
		TopCandidates: top,
	})
	if err != nil {
		return models.ResolutionResult{}, fmt.Errorf("enqueue review %q: %w", m.RawName, err)
	}
	r.log.Info("queued for review",
		applogger.String("raw_name", m.RawName),
		applogger.String("review_id", item.ID),
		applogger.Int("candidates", len(top)),
	)
	res := models.ResolutionResult{
		RawName:    m.RawName,
		Source:     m.Source,
		Status:     models.StatusQueuedForReview,
		Method:     models.MethodReview,
		EntityType: m.EntityType,
		Candidates: top,
		ReviewID:   item.ID,
	}
	if len(top) > 0 {
		res.Confidence = top[0].SemanticScore
	}
	return res, nil
}

func linked(m models.RawMention, a models.EntityAlias, confidence float64, method models.ResolutionMethod) models.ResolutionResult {
	ticker := a.Ticker
	return models.ResolutionResult{
		RawName:    m.RawName,
		Source:     m.Source,
		Ticker:     &ticker,
		Confidence: confidence,
		Status:     models.StatusAutoLinked,
		Method:     method,
		EntityType: a.EntityType,
	}
}

func head(c []models.ResolutionCandidate, n int) []models.ResolutionCandidate {
	if len(c) > n {
		c = c[:n]
	}
	return append([]models.ResolutionCandidate(nil), c...)
}
