package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	"AlphaNebula/pkg/database"
)

// SQLSignalStore appends signal events to the relational signals table.
type SQLSignalStore struct {
	client  *database.Client
	dialect database.Dialect
}

func NewSQLSignalStore(client *database.Client) *SQLSignalStore {
	return &SQLSignalStore{client: client, dialect: client.Dialect()}
}

var _ repository.SignalStore = (*SQLSignalStore)(nil)

func (s *SQLSignalStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, relationalSignalSchema)
}

// Append writes all events in one transaction. Replayed signal_ids are ignored.
func (s *SQLSignalStore) Append(ctx context.Context, events ...models.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}
	q := s.dialect.Rebind(`INSERT INTO signals (signal_id, ticker, signal_type, value, metadata, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (signal_id) DO NOTHING`)

	return s.client.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare append: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			meta, err := encodeMetadata(e.Metadata)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, e.SignalID, e.Ticker, string(e.SignalType), e.Value, meta, e.SourceURL, e.CreatedAt.UTC().UnixMicro()); err != nil {
				return fmt.Errorf("append signal %s: %w", e.SignalID, err)
			}
		}
		return nil
	})
}

func (s *SQLSignalStore) Query(ctx context.Context, q models.SignalQuery) ([]models.SignalEvent, error) {
	filter, filterArgs := typeFilter(q.SignalTypes)
	query := `SELECT signal_id, ticker, signal_type, value, metadata, source_url, created_at
		FROM signals WHERE ticker = ? AND created_at >= ? AND created_at < ?` + filter + orderBy(q)
	args := append([]any{q.Ticker, q.From.UTC().UnixMicro(), q.To.UTC().UnixMicro()}, filterArgs...)
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.client.DB().QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.SignalEvent, 0, 256)
	for rows.Next() {
		e, err := scanSQLSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return oldestFirst(q, out), nil
}

func (s *SQLSignalStore) Latest(ctx context.Context, ticker string, signalType models.SignalType) (*models.SignalEvent, error) {
	q := s.dialect.Rebind(`SELECT signal_id, ticker, signal_type, value, metadata, source_url, created_at
		FROM signals WHERE ticker = ? AND signal_type = ? ORDER BY created_at DESC, signal_id DESC LIMIT 1`)
	e, err := scanSQLSignal(s.client.DB().QueryRowContext(ctx, q, ticker, string(signalType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *SQLSignalStore) Close() error {
	return nil // managed by pkg/database
}

func scanSQLSignal(r rowScanner) (models.SignalEvent, error) {
	var (
		e          models.SignalEvent
		signalType string
		meta       string
		createdAt  int64
	)
	if err := r.Scan(&e.SignalID, &e.Ticker, &signalType, &e.Value, &meta, &e.SourceURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan signal: %w", err)
	}
	e.SignalType = models.SignalType(signalType)
	e.Metadata = decodeMetadata(meta)
	e.CreatedAt = time.UnixMicro(createdAt).UTC()
	return e, nil
}
