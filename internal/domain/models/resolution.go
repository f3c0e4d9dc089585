package models

import "time"

// ResolutionStatus is the terminal state of a resolution request.
type ResolutionStatus string

const (
	StatusAutoLinked      ResolutionStatus = "AUTO_LINKED"
	StatusQueuedForReview ResolutionStatus = "QUEUED_FOR_REVIEW"
)

// ResolutionMethod tells which stage produced the outcome.
type ResolutionMethod string

const (
	MethodExact    ResolutionMethod = "exact"
	MethodLexical  ResolutionMethod = "lexical"
	MethodSemantic ResolutionMethod = "semantic"
	MethodReview   ResolutionMethod = "review"
)

// ResolutionCandidate is produced during one resolution call and discarded afterwards
// unless promoted into an alias or a review item.
type ResolutionCandidate struct {
	RawName       string      `json:"raw_name"`
	Ticker        string      `json:"candidate_ticker"`
	EntityType    EntityType  `json:"entity_type"`
	Source        AliasSource `json:"source"`
	Confidence    float64     `json:"confidence"`
	BlockingScore float64     `json:"blocking_score"`
	SemanticScore float64     `json:"semantic_score"`
}

// CandidateFromAlias seeds a candidate from a stored alias.
func CandidateFromAlias(a EntityAlias, blockingScore float64) ResolutionCandidate {
	return ResolutionCandidate{
		RawName:       a.RawName,
		Ticker:        a.Ticker,
		EntityType:    a.EntityType,
		Source:        a.Source,
		Confidence:    a.Confidence,
		BlockingScore: blockingScore,
	}
}

// ResolutionResult is returned to callers of the resolver. Ticker is nil when queued.
type ResolutionResult struct {
	RawName    string                `json:"raw_name"`
	Source     string                `json:"source,omitempty"`
	Ticker     *string               `json:"ticker"`
	Confidence float64               `json:"confidence"`
	Status     ResolutionStatus      `json:"status"`
	Method     ResolutionMethod      `json:"method"`
	EntityType EntityType            `json:"entity_type"`
	Candidates []ResolutionCandidate `json:"candidates,omitempty"`
	ReviewID   string                `json:"review_id,omitempty"`
}

// Linked reports whether the result carries a ticker.
func (r ResolutionResult) Linked() bool {
	return r.Status == StatusAutoLinked && r.Ticker != nil
}

// ReviewItem is an unresolved mention waiting for human disposition.
type ReviewItem struct {
	ID            string                `json:"id"`
	RawName       string                `json:"raw_name"`
	Source        string                `json:"source"`
	EntityType    EntityType            `json:"entity_type"`
	TopCandidates []ResolutionCandidate `json:"top_candidates"`
	CreatedAt     time.Time             `json:"created_at"`
}

// RawMention is the only shape the core consumes from scrapers.
type RawMention struct {
	RawName    string         `json:"raw_name" validate:"required"`
	Source     string         `json:"source" validate:"required"`
	EntityType EntityType     `json:"entity_type,omitempty"`
	SignalType SignalType     `json:"signal_type,omitempty"`
	Value      *float64       `json:"value,omitempty"`
	SourceURL  string         `json:"source_url,omitempty"`
	ObservedAt time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SourceFrame is one message from a scraper gateway before source-specific parsing.
type SourceFrame struct {
	Source     string    `json:"source"`
	RawText    string    `json:"raw_text"`
	ReceivedAt time.Time `json:"received_at"`
}
