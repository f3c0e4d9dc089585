package repository

import "fmt"

// relationalSchema is valid for both SQLite and Postgres. Timestamps are unix microseconds.
var relationalSchema = []string{
	`CREATE TABLE IF NOT EXISTS entity_maps (
		raw_name         TEXT NOT NULL,
		raw_name_norm    TEXT NOT NULL,
		ticker           TEXT NOT NULL,
		entity_type      TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		source           TEXT NOT NULL,
		created_at       BIGINT NOT NULL,
		updated_at       BIGINT NOT NULL,
		PRIMARY KEY (raw_name_norm, entity_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_maps_ticker ON entity_maps (ticker)`,
	`CREATE TABLE IF NOT EXISTS review_items (
		id            TEXT PRIMARY KEY,
		raw_name      TEXT NOT NULL,
		raw_name_norm TEXT NOT NULL UNIQUE,
		source        TEXT NOT NULL,
		entity_type   TEXT NOT NULL,
		candidates    TEXT NOT NULL,
		created_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_items_created ON review_items (created_at)`,
}

var relationalSignalSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		signal_id   TEXT PRIMARY KEY,
		ticker      TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		metadata    TEXT NOT NULL,
		source_url  TEXT NOT NULL,
		created_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_ticker_created ON signals (ticker, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_partition ON signals (ticker, signal_type, created_at)`,
}

// ClickHouseSignalSchema returns DDL for the columnar event log.
func ClickHouseSignalSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
			signal_id   String,
			ticker      LowCardinality(String),
			signal_type LowCardinality(String),
			value       Float64,
			metadata    String,
			source_url  String,
			created_at  DateTime64(6, 'UTC')
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (ticker, signal_type, created_at, signal_id)`, database),
	}
}
