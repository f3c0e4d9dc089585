package mentionfeed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"AlphaNebula/internal/domain/models"
	drepo "AlphaNebula/internal/domain/repository"
)

// JSONProducer parses frames that already carry the mention contract as JSON.
// source fills in a missing source field.
func JSONProducer(source string) drepo.MentionProducer {
	return drepo.MentionProducerFunc(func(rawText string) (models.RawMention, error) {
		var m models.RawMention
		if err := json.Unmarshal([]byte(rawText), &m); err != nil {
			return models.RawMention{}, models.NewValidationError("payload", err.Error())
		}
		if m.Source == "" {
			m.Source = source
		}
		return m, nil
	})
}

// DelimitedProducer parses "name|value|timestamp" lines, the shape manifest and
// job-board scrapers emit. Value and timestamp are optional.
func DelimitedProducer(source string, signalType models.SignalType, entityType models.EntityType) drepo.MentionProducer {
	return drepo.MentionProducerFunc(func(rawText string) (models.RawMention, error) {
		parts := strings.Split(rawText, "|")
		m := models.RawMention{
			RawName:    strings.TrimSpace(parts[0]),
			Source:     source,
			EntityType: entityType,
			SignalType: signalType,
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err != nil {
				return models.RawMention{}, models.NewValidationError("value", fmt.Sprintf("not a number: %q", parts[1]))
			}
			m.Value = &v
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[2]))
			if err != nil {
				return models.RawMention{}, models.NewValidationError("timestamp", err.Error())
			}
			m.ObservedAt = t.UTC()
		}
		return m, nil
	})
}

// Registry picks the producer registered for a frame's source, falling back to
// JSON parsing for unknown sources.
type Registry struct {
	mu        sync.RWMutex
	producers map[string]drepo.MentionProducer
}

func NewRegistry() *Registry {
	return &Registry{producers: make(map[string]drepo.MentionProducer)}
}

func (r *Registry) Register(source string, p drepo.MentionProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[strings.ToLower(source)] = p
}

// Produce turns a frame into a mention, stamping ReceivedAt when the source gave no time.
func (r *Registry) Produce(f models.SourceFrame) (models.RawMention, error) {
	r.mu.RLock()
	p, ok := r.producers[strings.ToLower(f.Source)]
	r.mu.RUnlock()
	if !ok {
		p = JSONProducer(f.Source)
	}
	m, err := p.ProduceMention(f.RawText)
	if err != nil {
		return models.RawMention{}, fmt.Errorf("produce mention from %s: %w", f.Source, err)
	}
	if m.ObservedAt.IsZero() {
		m.ObservedAt = f.ReceivedAt
	}
	return m, nil
}
