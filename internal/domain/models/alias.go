package models

import (
	"strings"
	"time"
	"unicode"
)

// EntityType distinguishes the relationship a raw name has to its ticker.
type EntityType string

const (
	EntitySubsidiary EntityType = "SUBSIDIARY"
	EntitySupplier   EntityType = "SUPPLIER"
	EntityTypeAlias  EntityType = "ALIAS"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntitySubsidiary, EntitySupplier, EntityTypeAlias:
		return true
	default:
		return false
	}
}

// AliasSource records how a mapping was established.
type AliasSource string

const (
	SourceManual          AliasSource = "manual"
	SourceAutomaticFuzzy  AliasSource = "automatic_fuzzy"
	SourceAutomaticVector AliasSource = "automatic_vector"
)

func (s AliasSource) Valid() bool {
	switch s {
	case SourceManual, SourceAutomaticFuzzy, SourceAutomaticVector:
		return true
	default:
		return false
	}
}

// IsAutomatic reports whether the source is produced by the resolver rather than a human.
func (s AliasSource) IsAutomatic() bool {
	return s == SourceAutomaticFuzzy || s == SourceAutomaticVector
}

// EntityAlias maps a raw name onto a canonical ticker.
type EntityAlias struct {
	RawName    string      `json:"raw_name"`
	Ticker     string      `json:"canonical_ticker"`
	EntityType EntityType  `json:"entity_type"`
	Confidence float64     `json:"confidence"`
	Source     AliasSource `json:"source"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Key returns the identity of the alias in the store.
func (a EntityAlias) Key() AliasKey {
	return AliasKey{Name: NormalizeName(a.RawName), EntityType: a.EntityType}
}

// AliasKey is the unique key of an EntityAlias: normalized raw name plus entity type.
type AliasKey struct {
	Name       string
	EntityType EntityType
}

// Validate checks field level invariants.
func (a EntityAlias) Validate() error {
	if NormalizeName(a.RawName) == "" {
		return NewValidationError("raw_name", "must not be empty")
	}
	if strings.TrimSpace(a.Ticker) == "" {
		return NewValidationError("canonical_ticker", "must not be empty")
	}
	if !a.EntityType.Valid() {
		return NewValidationError("entity_type", "must be one of SUBSIDIARY, SUPPLIER, ALIAS")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return NewValidationError("confidence", "must be within [0, 1]")
	}
	if !a.Source.Valid() {
		return NewValidationError("source", "must be one of manual, automatic_fuzzy, automatic_vector")
	}
	return nil
}

// NormalizeName lowercases, strips punctuation and collapses whitespace.
// "Hon Hai Precision Ind. Co., Ltd" and "hon hai precision ind co ltd" normalize equally.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&':
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// SourcePrecedence is a total order over alias sources, highest priority first.
// It is loaded from configuration so deployments can change policy.
type SourcePrecedence []AliasSource

// DefaultSourcePrecedence ranks human curation above vector matches above fuzzy matches.
var DefaultSourcePrecedence = SourcePrecedence{SourceManual, SourceAutomaticVector, SourceAutomaticFuzzy}

// ParseSourcePrecedence validates a configured order.
func ParseSourcePrecedence(names []string) (SourcePrecedence, error) {
	if len(names) == 0 {
		return DefaultSourcePrecedence, nil
	}
	seen := make(map[AliasSource]bool, len(names))
	out := make(SourcePrecedence, 0, len(names))
	for _, n := range names {
		s := AliasSource(strings.ToLower(strings.TrimSpace(n)))
		if !s.Valid() {
			return nil, NewValidationError("source_precedence", "unknown source "+n)
		}
		if seen[s] {
			return nil, NewValidationError("source_precedence", "duplicate source "+n)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// Rank returns the position of s; unlisted sources rank last.
func (p SourcePrecedence) Rank(s AliasSource) int {
	for i, v := range p {
		if v == s {
			return i
		}
	}
	return len(p)
}

// Outranks reports whether a has strictly higher priority than b.
func (p SourcePrecedence) Outranks(a, b AliasSource) bool {
	return p.Rank(a) < p.Rank(b)
}

// Merge decides what is stored when incoming is written over existing for the same key.
// Manual rows never change under automatic writes, confidence never decreases for a
// confirmed ticker, and a different ticker only wins with higher precedence and at
// least equal confidence (or as a human correction of a manual row).
func (p SourcePrecedence) Merge(existing, incoming EntityAlias) (EntityAlias, bool, error) {
	if existing.Source == SourceManual && incoming.Source.IsAutomatic() {
		return existing, false, nil
	}

	merged := existing
	if strings.EqualFold(existing.Ticker, incoming.Ticker) {
		if incoming.Confidence > merged.Confidence {
			merged.Confidence = incoming.Confidence
		}
		if p.Outranks(incoming.Source, existing.Source) && incoming.Confidence >= existing.Confidence {
			merged.Source = incoming.Source
		}
		changed := merged.Confidence != existing.Confidence || merged.Source != existing.Source
		return merged, changed, nil
	}

	humanCorrection := existing.Source == SourceManual && incoming.Source == SourceManual
	if humanCorrection || (p.Outranks(incoming.Source, existing.Source) && incoming.Confidence >= existing.Confidence) {
		merged.Ticker = incoming.Ticker
		merged.Source = incoming.Source
		merged.Confidence = incoming.Confidence
		merged.RawName = incoming.RawName
		return merged, true, nil
	}
	if incoming.Source == SourceManual {
		return existing, false, ErrAliasConflict
	}
	return existing, false, nil
}
