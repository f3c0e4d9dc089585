package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	"AlphaNebula/pkg/database"
)

var errConcurrentInsert = errors.New("concurrent insert")

const maxUpsertAttempts = 3

// SQLCandidateStore keeps aliases and the review queue in one relational database,
// so approving a review item and writing its alias commit together.
type SQLCandidateStore struct {
	client     *database.Client
	db         *sql.DB
	dialect    database.Dialect
	precedence models.SourcePrecedence
	locks      keyedLocks
	now        func() time.Time
}

// StoreOption configures SQLCandidateStore.
type StoreOption func(*SQLCandidateStore)

// WithPrecedence sets the source order used when merging writes.
func WithPrecedence(p models.SourcePrecedence) StoreOption {
	return func(s *SQLCandidateStore) {
		s.precedence = p
	}
}

// WithStoreClock replaces time.Now.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *SQLCandidateStore) {
		s.now = now
	}
}

// NewSQLCandidateStore wraps an open client.
func NewSQLCandidateStore(client *database.Client, opts ...StoreOption) *SQLCandidateStore {
	s := &SQLCandidateStore{
		client:     client,
		db:         client.DB(),
		dialect:    client.Dialect(),
		precedence: models.DefaultSourcePrecedence,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ repository.AliasStore  = (*SQLCandidateStore)(nil)
	_ repository.ReviewQueue = (*SQLCandidateStore)(nil)
)

func (s *SQLCandidateStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, relationalSchema)
}

func (s *SQLCandidateStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *SQLCandidateStore) Close() error {
	return nil // managed by pkg/database
}

const aliasColumns = `raw_name, ticker, entity_type, confidence_score, source, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlias(r rowScanner) (models.EntityAlias, error) {
	var (
		a                    models.EntityAlias
		entityType, source   string
		createdAt, updatedAt int64
	)
	if err := r.Scan(&a.RawName, &a.Ticker, &entityType, &a.Confidence, &source, &createdAt, &updatedAt); err != nil {
		return a, err
	}
	a.EntityType = models.EntityType(entityType)
	a.Source = models.AliasSource(source)
	a.CreatedAt = time.UnixMicro(createdAt).UTC()
	a.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return a, nil
}

func (s *SQLCandidateStore) FindExact(ctx context.Context, rawName string, entityType models.EntityType) (*models.EntityAlias, error) {
	q := s.dialect.Rebind(`SELECT ` + aliasColumns + ` FROM entity_maps WHERE raw_name_norm = ? AND entity_type = ?`)
	a, err := scanAlias(s.db.QueryRowContext(ctx, q, models.NormalizeName(rawName), string(entityType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find alias: %w", err)
	}
	return &a, nil
}

func (s *SQLCandidateStore) FindByName(ctx context.Context, rawName string) ([]models.EntityAlias, error) {
	q := s.dialect.Rebind(`SELECT ` + aliasColumns + ` FROM entity_maps WHERE raw_name_norm = ? ORDER BY entity_type`)
	return s.queryAliases(ctx, q, models.NormalizeName(rawName))
}

func (s *SQLCandidateStore) ListByTicker(ctx context.Context, ticker string, limit int) ([]models.EntityAlias, error) {
	if limit <= 0 {
		limit = 500
	}
	if ticker == "" {
		q := s.dialect.Rebind(`SELECT ` + aliasColumns + ` FROM entity_maps ORDER BY ticker, raw_name_norm, entity_type LIMIT ?`)
		return s.queryAliases(ctx, q, limit)
	}
	q := s.dialect.Rebind(`SELECT ` + aliasColumns + ` FROM entity_maps WHERE ticker = ? ORDER BY raw_name_norm, entity_type LIMIT ?`)
	return s.queryAliases(ctx, q, models.NormalizeTicker(ticker), limit)
}

func (s *SQLCandidateStore) All(ctx context.Context) ([]models.EntityAlias, error) {
	return s.queryAliases(ctx, `SELECT `+aliasColumns+` FROM entity_maps ORDER BY raw_name_norm, entity_type`)
}

func (s *SQLCandidateStore) queryAliases(ctx context.Context, q string, args ...any) ([]models.EntityAlias, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()

	var out []models.EntityAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert inserts or merges an alias. Writers for the same raw name are serialized
// in-process, and the read-decide-write cycle runs in one transaction.
func (s *SQLCandidateStore) Upsert(ctx context.Context, in models.EntityAlias) (models.EntityAlias, repository.UpsertOutcome, error) {
	in.Ticker = models.NormalizeTicker(in.Ticker)
	if err := in.Validate(); err != nil {
		return models.EntityAlias{}, "", err
	}

	unlock := s.locks.Lock(models.NormalizeName(in.RawName))
	defer unlock()

	var (
		stored  models.EntityAlias
		outcome repository.UpsertOutcome
	)
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			stored, outcome, err = s.upsertTx(ctx, tx, in)
			return err
		})
		if errors.Is(err, errConcurrentInsert) {
			continue
		}
		return stored, outcome, err
	}
	return models.EntityAlias{}, "", fmt.Errorf("upsert alias %q: %w", in.RawName, errConcurrentInsert)
}

func (s *SQLCandidateStore) upsertTx(ctx context.Context, tx *sql.Tx, in models.EntityAlias) (models.EntityAlias, repository.UpsertOutcome, error) {
	key := in.Key()
	now := s.now().UTC()

	q := s.dialect.Rebind(`SELECT ` + aliasColumns + ` FROM entity_maps WHERE raw_name_norm = ? AND entity_type = ?` + s.dialect.LockClause())
	existing, err := scanAlias(tx.QueryRowContext(ctx, q, key.Name, string(key.EntityType)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		in.CreatedAt, in.UpdatedAt = now, now
		ins := s.dialect.Rebind(`INSERT INTO entity_maps (raw_name, raw_name_norm, ticker, entity_type, confidence_score, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (raw_name_norm, entity_type) DO NOTHING`)
		res, err := tx.ExecContext(ctx, ins, in.RawName, key.Name, in.Ticker, string(in.EntityType), in.Confidence, string(in.Source), now.UnixMicro(), now.UnixMicro())
		if err != nil {
			return models.EntityAlias{}, "", fmt.Errorf("insert alias: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.EntityAlias{}, "", errConcurrentInsert
		}
		return in, repository.OutcomeInserted, nil
	case err != nil:
		return models.EntityAlias{}, "", fmt.Errorf("lock alias: %w", err)
	}

	merged, changed, err := s.precedence.Merge(existing, in)
	if err != nil {
		return existing, repository.OutcomeUnchanged, err
	}
	if !changed {
		return existing, repository.OutcomeUnchanged, nil
	}

	merged.UpdatedAt = now
	upd := s.dialect.Rebind(`UPDATE entity_maps SET raw_name = ?, ticker = ?, confidence_score = ?, source = ?, updated_at = ?
		WHERE raw_name_norm = ? AND entity_type = ?`)
	if _, err := tx.ExecContext(ctx, upd, merged.RawName, merged.Ticker, merged.Confidence, string(merged.Source), now.UnixMicro(), key.Name, string(key.EntityType)); err != nil {
		return models.EntityAlias{}, "", fmt.Errorf("update alias: %w", err)
	}
	return merged, repository.OutcomeUpdated, nil
}

// --- review queue ---

const reviewColumns = `id, raw_name, source, entity_type, candidates, created_at`

func scanReview(r rowScanner) (models.ReviewItem, error) {
	var (
		item       models.ReviewItem
		entityType string
		candidates string
		createdAt  int64
	)
	if err := r.Scan(&item.ID, &item.RawName, &item.Source, &entityType, &candidates, &createdAt); err != nil {
		return item, err
	}
	item.EntityType = models.EntityType(entityType)
	item.CreatedAt = time.UnixMicro(createdAt).UTC()
	if err := json.Unmarshal([]byte(candidates), &item.TopCandidates); err != nil {
		return item, fmt.Errorf("decode candidates: %w", err)
	}
	return item, nil
}

// Enqueue stores one open item per normalized raw name; re-queueing refreshes its candidates.
func (s *SQLCandidateStore) Enqueue(ctx context.Context, item models.ReviewItem) (models.ReviewItem, error) {
	norm := models.NormalizeName(item.RawName)
	if norm == "" {
		return models.ReviewItem{}, models.NewValidationError("raw_name", "must not be empty")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EntityType == "" {
		item.EntityType = models.EntityTypeAlias
	}
	candidates, err := json.Marshal(nonNilCandidates(item.TopCandidates))
	if err != nil {
		return models.ReviewItem{}, fmt.Errorf("encode candidates: %w", err)
	}
	now := s.now().UTC()

	var stored models.ReviewItem
	err = s.client.WithTx(ctx, func(tx *sql.Tx) error {
		ins := s.dialect.Rebind(`INSERT INTO review_items (id, raw_name, raw_name_norm, source, entity_type, candidates, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (raw_name_norm) DO UPDATE SET candidates = excluded.candidates, source = excluded.source, entity_type = excluded.entity_type`)
		if _, err := tx.ExecContext(ctx, ins, item.ID, item.RawName, norm, item.Source, string(item.EntityType), string(candidates), now.UnixMicro()); err != nil {
			return fmt.Errorf("enqueue review item: %w", err)
		}
		sel := s.dialect.Rebind(`SELECT ` + reviewColumns + ` FROM review_items WHERE raw_name_norm = ?`)
		var err error
		stored, err = scanReview(tx.QueryRowContext(ctx, sel, norm))
		return err
	})
	return stored, err
}

func (s *SQLCandidateStore) Pending(ctx context.Context, limit, offset int) ([]models.ReviewItem, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.dialect.Rebind(`SELECT ` + reviewColumns + ` FROM review_items ORDER BY created_at, id LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	items := make([]models.ReviewItem, 0)
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLCandidateStore) Item(ctx context.Context, id string) (models.ReviewItem, error) {
	q := s.dialect.Rebind(`SELECT ` + reviewColumns + ` FROM review_items WHERE id = ?`)
	item, err := scanReview(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return item, models.ErrReviewItemNotFound
	}
	return item, err
}

// Approve converts the item into a manual alias and removes it atomically.
func (s *SQLCandidateStore) Approve(ctx context.Context, id string, alias models.EntityAlias) (models.EntityAlias, error) {
	item, err := s.Item(ctx, id)
	if err != nil {
		return models.EntityAlias{}, err
	}
	alias.RawName = item.RawName
	alias.Source = models.SourceManual
	alias.Ticker = models.NormalizeTicker(alias.Ticker)
	if alias.EntityType == "" {
		alias.EntityType = item.EntityType
	}
	if err := alias.Validate(); err != nil {
		return models.EntityAlias{}, err
	}

	unlock := s.locks.Lock(models.NormalizeName(item.RawName))
	defer unlock()

	var stored models.EntityAlias
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = s.client.WithTx(ctx, func(tx *sql.Tx) error {
			del := s.dialect.Rebind(`DELETE FROM review_items WHERE id = ?`)
			res, err := tx.ExecContext(ctx, del, id)
			if err != nil {
				return fmt.Errorf("remove review item: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return models.ErrReviewItemNotFound
			}
			stored, _, err = s.upsertTx(ctx, tx, alias)
			return err
		})
		if !errors.Is(err, errConcurrentInsert) {
			break
		}
	}
	return stored, err
}

func (s *SQLCandidateStore) Discard(ctx context.Context, id string) (models.ReviewItem, error) {
	var item models.ReviewItem
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		sel := s.dialect.Rebind(`SELECT ` + reviewColumns + ` FROM review_items WHERE id = ?` + s.dialect.LockClause())
		var err error
		item, err = scanReview(tx.QueryRowContext(ctx, sel, id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrReviewItemNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM review_items WHERE id = ?`), id)
		return err
	})
	return item, err
}

func nonNilCandidates(c []models.ResolutionCandidate) []models.ResolutionCandidate {
	if c == nil {
		return []models.ResolutionCandidate{}
	}
	return c
}
