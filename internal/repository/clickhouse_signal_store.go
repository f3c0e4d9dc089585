package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	pkgch "AlphaNebula/pkg/clickhouse"
	applogger "AlphaNebula/pkg/logger"
)

// CHSignalStore keeps the append-only event log in ClickHouse.
type CHSignalStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client, l *applogger.Logger) *CHSignalStore {
	return &CHSignalStore{
		client: ch,
		db:     ch.DB(),
		table:  ch.Database() + ".signals",
		l:      l.Component("clickhouse_signals"),
	}
}

var _ repository.SignalStore = (*CHSignalStore)(nil)

func (s *CHSignalStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, ClickHouseSignalSchema(s.client.Database()))
}

// Append inserts events as multi-row VALUES batches.
func (s *CHSignalStore) Append(ctx context.Context, events ...models.SignalEvent) error {
	const chunkSize = 2000
	for start := 0; start < len(events); start += chunkSize {
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*7)
		for _, e := range events[start:end] {
			meta, err := encodeMetadata(e.Metadata)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, e.SignalID, e.Ticker, string(e.SignalType), e.Value, meta, e.SourceURL, e.CreatedAt.UTC())
		}
		q := fmt.Sprintf("INSERT INTO %s (signal_id, ticker, signal_type, value, metadata, source_url, created_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse append error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("append signals: %w", err)
		}
	}
	return nil
}

func (s *CHSignalStore) Query(ctx context.Context, q models.SignalQuery) ([]models.SignalEvent, error) {
	start := time.Now()
	filter, filterArgs := typeFilter(q.SignalTypes)
	query := fmt.Sprintf(`
        SELECT signal_id, ticker, signal_type, value, metadata, source_url, created_at
        FROM %s FINAL
        WHERE ticker = ? AND created_at >= ? AND created_at < ?%s%s`, s.table, filter, orderBy(q))
	args := append([]any{q.Ticker, q.From.UTC(), q.To.UTC()}, filterArgs...)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.l.Error("clickhouse query error", applogger.String("ticker", q.Ticker), applogger.Error(err))
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.SignalEvent, 0, 256)
	for rows.Next() {
		e, err := scanCHSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query ok",
		applogger.String("ticker", q.Ticker),
		applogger.Int("rows", len(out)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return oldestFirst(q, out), nil
}

func (s *CHSignalStore) Latest(ctx context.Context, ticker string, signalType models.SignalType) (*models.SignalEvent, error) {
	q := fmt.Sprintf(`SELECT signal_id, ticker, signal_type, value, metadata, source_url, created_at
        FROM %s WHERE ticker = ? AND signal_type = ? ORDER BY created_at DESC, signal_id DESC LIMIT 1`, s.table)
	e, err := scanCHSignal(s.db.QueryRowContext(ctx, q, ticker, string(signalType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHSignalStore) Close() error {
	return nil // managed by pkg/clickhouse
}

func scanCHSignal(r rowScanner) (models.SignalEvent, error) {
	var (
		e          models.SignalEvent
		signalType string
		meta       string
	)
	if err := r.Scan(&e.SignalID, &e.Ticker, &signalType, &e.Value, &meta, &e.SourceURL, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan signal: %w", err)
	}
	e.SignalType = models.SignalType(signalType)
	e.Metadata = decodeMetadata(meta)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
