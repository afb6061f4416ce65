package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS loadbench_runs (
	id VARCHAR(36) NOT NULL,
	fingerprint VARCHAR(768) NOT NULL,
	split VARCHAR(16) NOT NULL,
	created_at DATETIME NOT NULL,
	duration_secs DOUBLE NOT NULL,
	batches BIGINT NOT NULL,
	samples BIGINT NOT NULL,
	samples_per_sec DOUBLE NOT NULL,
	p25_ms DOUBLE NOT NULL,
	p50_ms DOUBLE NOT NULL,
	p75_ms DOUBLE NOT NULL,
	p90_ms DOUBLE NOT NULL,
	p99_ms DOUBLE NOT NULL,
	PRIMARY KEY (id, split),
	INDEX by_config (fingerprint(255), split, created_at)
)`

// recordResults stores the per-split cumulative numbers in MySQL and logs
// the throughput change against the most recent run with the same
// configuration.
func recordResults(
	ctx context.Context,
	logger *slog.Logger,
	dsn string,
	runID uuid.UUID,
	fingerprint string,
	summary runSummary,
) error {
	dbc, err := connectToMySQL(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to MySQL: %w", err)
	}
	defer dbc.Close()

	if _, err := dbc.ExecContext(ctx, resultsSchema); err != nil {
		return fmt.Errorf("ensuring results table: %w", err)
	}

	now := time.Now()
	for _, split := range sortedSplits(summary.splits) {
		ss := summary.splits[split]

		var prevSps float64
		err := dbc.QueryRowContext(ctx,
			`SELECT samples_per_sec FROM loadbench_runs
			 WHERE fingerprint = ? AND split = ?
			 ORDER BY created_at DESC LIMIT 1`,
			fingerprint, split,
		).Scan(&prevSps)
		switch {
		case err == sql.ErrNoRows:
			// First run with this configuration, nothing to compare against.
		case err != nil:
			return fmt.Errorf("querying previous run for split %q: %w", split, err)
		default:
			pctChange := (ss.samplesPerSec - prevSps) / prevSps * 100
			logger.Info("throughput vs previous run with same config",
				slog.String("split", split),
				slog.Float64("samples_per_sec", math.Round(ss.samplesPerSec*10)/10),
				slog.Float64("previous", math.Round(prevSps*10)/10),
				slog.String("change", fmt.Sprintf("%+.1f%%", pctChange)))
		}

		if _, err := dbc.ExecContext(ctx,
			`INSERT INTO loadbench_runs
			 (id, fingerprint, split, created_at, duration_secs, batches, samples,
			  samples_per_sec, p25_ms, p50_ms, p75_ms, p90_ms, p99_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID.String(), fingerprint, split, now, summary.duration.Seconds(),
			ss.batches, ss.samples, ss.samplesPerSec,
			ss.p25Ms, ss.p50Ms, ss.p75Ms, ss.p90Ms, ss.p99Ms,
		); err != nil {
			return fmt.Errorf("inserting results for split %q: %w", split, err)
		}
	}

	logger.Info("recorded results to MySQL", slog.String("run", runID.String()))

	return nil
}

func connectToMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	// For parsing timestamps into Go time.Time objects
	if !strings.Contains(dsn, "parseTime") {
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging mysql database: %w", err)
	}

	return db, nil
}
