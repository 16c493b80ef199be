package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tennisScrapper/pkg/scraper"
)

//go:embed migrations/*.sql
var migrations embed.FS

const table = "reserved_slots"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// NewPool connects to dsn and pings the database
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

// Postgres stores records in the reserved_slots table
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a migrated pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	q := psql.Insert(table).Columns(
		"use_ymd", "bcd", "icd", "start_time", "end_time",
		"bcd_name", "icd_name", "cell_id", "status", "reservation_number", "updated_at",
	)
	now := time.Now()
	for _, r := range records {
		if !KeyOf(r.Slot).valid() {
			return ErrInvalidRecord
		}
		sl := r.Slot
		q = q.Values(sl.Date, sl.VenueID, sl.FacilityID, sl.StartTime, sl.EndTime,
			sl.VenueName, sl.FacilityName, sl.CellID, r.Status, r.ReservationNumber, now)
	}
	query, args, err := q.Suffix(`ON CONFLICT (use_ymd, bcd, icd, start_time) DO UPDATE SET
		end_time = EXCLUDED.end_time,
		bcd_name = EXCLUDED.bcd_name,
		icd_name = EXCLUDED.icd_name,
		cell_id = EXCLUDED.cell_id,
		status = EXCLUDED.status,
		reservation_number = EXCLUDED.reservation_number,
		updated_at = EXCLUDED.updated_at`).ToSql()
	if err != nil {
		return fmt.Errorf("build save query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save reserved slots: %w", err)
	}
	return nil
}

func (s *Postgres) Exists(ctx context.Context, key Key) (bool, error) {
	query, args, err := psql.Select("1").From(table).Where(squirrel.Eq{
		"use_ymd":    key.Date,
		"bcd":        key.VenueID,
		"icd":        key.FacilityID,
		"start_time": key.StartTime,
	}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check reserved slot %s: %w", key, err)
	}
	return true, nil
}

func (s *Postgres) List(ctx context.Context) ([]Record, error) {
	query, args, err := psql.Select(
		"use_ymd", "bcd", "icd", "start_time", "end_time",
		"bcd_name", "icd_name", "cell_id", "status", "reservation_number", "updated_at",
	).From(table).OrderBy("use_ymd", "bcd", "icd", "start_time").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reserved slots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		sl := &r.Slot
		if err := rows.Scan(&sl.Date, &sl.VenueID, &sl.FacilityID, &sl.StartTime, &sl.EndTime,
			&sl.VenueName, &sl.FacilityName, &sl.CellID, &r.Status, &r.ReservationNumber, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reserved slot: %w", err)
		}
		fill(sl)
		out = append(out, r)
	}
	return out, rows.Err()
}

// fill restores the derived slot fields that are not stored
func fill(sl *scraper.Slot) {
	sl.StartDisplay = scraper.FormatTime(sl.StartTime)
	sl.EndDisplay = scraper.FormatTime(sl.EndTime)
	sl.PurposeCode = scraper.PurposeCode
	sl.PurposeClass = scraper.PurposeClassCode
	if _, ts, ok := scraper.SplitCellID(sl.CellID); ok {
		sl.TimeSlot = ts
	}
}
