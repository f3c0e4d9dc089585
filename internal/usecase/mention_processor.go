package usecase

import (
	"context"
	"fmt"

	"AlphaNebula/internal/domain/models"
	applogger "AlphaNebula/pkg/logger"
)

// MentionOutcome is what happened to one raw mention.
type MentionOutcome struct {
	Resolution models.ResolutionResult `json:"resolution"`
	Ingested   *IngestResult           `json:"ingested,omitempty"`
}

// MentionProcessor resolves scraped mentions and turns linked, valued ones into signal events.
type MentionProcessor struct {
	resolver *EntityResolver
	ingestor *SignalIngestor
	log      *applogger.Logger
}

func NewMentionProcessor(resolver *EntityResolver, ingestor *SignalIngestor, l *applogger.Logger) *MentionProcessor {
	if l == nil {
		l = applogger.Nop()
	}
	return &MentionProcessor{resolver: resolver, ingestor: ingestor, log: l.Component("mentions")}
}

// Process never ingests a mention that was queued for review.
func (p *MentionProcessor) Process(ctx context.Context, m models.RawMention) (MentionOutcome, error) {
	res, err := p.resolver.ResolveCached(ctx, m)
	if err != nil {
		return MentionOutcome{}, fmt.Errorf("resolve %q: %w", m.RawName, err)
	}
	out := MentionOutcome{Resolution: res}
	if !res.Linked() || m.SignalType == "" || m.Value == nil {
		return out, nil
	}

	meta := make(map[string]any, len(m.Metadata)+2)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta["raw_name"] = m.RawName
	meta["source"] = m.Source
	meta["resolution_method"] = string(res.Method)

	ingested, err := p.ingestor.Ingest(ctx, models.SignalEvent{
		Ticker:     *res.Ticker,
		SignalType: m.SignalType,
		Value:      *m.Value,
		Metadata:   meta,
		SourceURL:  m.SourceURL,
		CreatedAt:  m.ObservedAt,
	})
	if err != nil {
		return out, fmt.Errorf("ingest mention %q: %w", m.RawName, err)
	}
	out.Ingested = &ingested
	p.log.Debug("mention ingested",
		applogger.String("raw_name", m.RawName),
		applogger.String("ticker", *res.Ticker),
		applogger.String("signal_type", string(m.SignalType)))
	return out, nil
}
