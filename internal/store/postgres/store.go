// Package postgres provides the Postgres-backed opportunity store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store persists opportunities with merge-upsert semantics: an incoming
// empty string or zero money value never clears a stored one.
type Store struct {
	pool  pool
	table string
	clock grants.Clock
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, clock grants.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newWithPool(p, cfg.Table, clock)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(p pool, table string, clock grants.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(p, table, clock)
}

func newWithPool(p pool, table string, clock grants.Clock) (*Store, error) {
	if table == "" {
		table = "opportunities"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = grants.SystemClock{}
	}
	return &Store{pool: p, table: table, clock: clock}, nil
}

// EnsureSchema creates the opportunities table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id                TEXT PRIMARY KEY,
	number            TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	agency_name       TEXT NOT NULL DEFAULT '',
	agency_code       TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'unknown',
	doc_type          TEXT NOT NULL DEFAULT '',
	open_date         TEXT NOT NULL DEFAULT '',
	close_date        TEXT NOT NULL DEFAULT '',
	archive_date      TEXT NOT NULL DEFAULT '',
	award_floor       DOUBLE PRECISION NOT NULL DEFAULT 0,
	award_ceiling     DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_total_program_funding DOUBLE PRECISION NOT NULL DEFAULT 0,
	expected_number_of_awards       INTEGER NOT NULL DEFAULT 0,
	category          TEXT NOT NULL DEFAULT '',
	funding_type      TEXT NOT NULL DEFAULT '',
	cfda_numbers      TEXT NOT NULL DEFAULT '',
	cost_sharing      TEXT NOT NULL DEFAULT '',
	opportunity_url   TEXT NOT NULL DEFAULT '',
	source_tier       TEXT NOT NULL DEFAULT '',
	raw_source        JSONB,
	last_updated      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// outranks holds when the incoming record's fidelity (bound as $24) is
// at least as good as the stored row's.
const outranks = `$24 >= CASE o.source_tier WHEN 'detail' THEN 4 WHEN 'search' THEN 3 WHEN 'scrape' THEN 2 WHEN 'bulk-extract' THEN 1 ELSE 0 END`

// mergeText keeps the stored value unless the incoming record outranks
// it and carries a non-empty replacement; a poorer record only fills a
// still-empty column.
func mergeText(col string, arg int) string {
	return fmt.Sprintf("CASE WHEN %s THEN COALESCE(NULLIF($%d, ''), o.%s) ELSE COALESCE(NULLIF(o.%s, ''), $%d) END",
		outranks, arg, col, col, arg)
}

func mergeMoney(col string, arg int) string {
	return fmt.Sprintf("CASE WHEN (%s) AND $%d <> 0 THEN $%d WHEN o.%s <> 0 THEN o.%s ELSE $%d END",
		outranks, arg, arg, col, col, arg)
}

// repairFloor and repairCeiling swap a merged floor/ceiling pair when
// the merge would leave floor above ceiling, which can happen when the
// two bounds arrive from different upserts.
func repairFloor(floor, ceiling string) string {
	return fmt.Sprintf("CASE WHEN (%s) <> 0 AND (%s) <> 0 AND (%s) > (%s) THEN (%s) ELSE (%s) END",
		floor, ceiling, floor, ceiling, ceiling, floor)
}

func repairCeiling(floor, ceiling string) string {
	return fmt.Sprintf("CASE WHEN (%s) <> 0 AND (%s) <> 0 AND (%s) > (%s) THEN (%s) ELSE (%s) END",
		floor, ceiling, floor, ceiling, floor, ceiling)
}

func buildUpsertQuery(table string) string {
	floor := mergeMoney("award_floor", 12)
	ceiling := mergeMoney("award_ceiling", 13)
	assigns := []string{
		"number = " + mergeText("number", 2),
		"title = " + mergeText("title", 3),
		"agency_name = " + mergeText("agency_name", 4),
		"agency_code = " + mergeText("agency_code", 5),
		"description = " + mergeText("description", 6),
		"status = " + mergeText("status", 7),
		"doc_type = " + mergeText("doc_type", 8),
		"open_date = " + mergeText("open_date", 9),
		"close_date = " + mergeText("close_date", 10),
		"archive_date = " + mergeText("archive_date", 11),
		"award_floor = " + repairFloor(floor, ceiling),
		"award_ceiling = " + repairCeiling(floor, ceiling),
		"estimated_total_program_funding = " + mergeMoney("estimated_total_program_funding", 14),
		"expected_number_of_awards = " + mergeMoney("expected_number_of_awards", 15),
		"category = " + mergeText("category", 16),
		"funding_type = " + mergeText("funding_type", 17),
		"cfda_numbers = " + mergeText("cfda_numbers", 18),
		"cost_sharing = " + mergeText("cost_sharing", 19),
		"opportunity_url = " + mergeText("opportunity_url", 20),
		fmt.Sprintf("source_tier = CASE WHEN %s THEN $21 ELSE o.source_tier END", outranks),
		fmt.Sprintf("raw_source = CASE WHEN (%s) AND $22 IS NOT NULL THEN $22 ELSE COALESCE(o.raw_source, $22) END", outranks),
		"last_updated = $23",
	}
	return fmt.Sprintf(`
INSERT INTO %s AS o (
	id, number, title, agency_name, agency_code, description, status,
	doc_type, open_date, close_date, archive_date,
	award_floor, award_ceiling, estimated_total_program_funding, expected_number_of_awards,
	category, funding_type, cfda_numbers, cost_sharing,
	opportunity_url, source_tier, raw_source, last_updated
) VALUES (
	$1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'unknown'),
	$8, $9, $10, $11,
	$12, $13, $14, $15,
	$16, $17, $18, $19,
	$20, $21, $22, $23
)
ON CONFLICT (id) DO UPDATE SET
	%s`, table, strings.Join(assigns, ",\n\t"))
}

// Upsert inserts or merges one record. Merging is gated on source
// fidelity: an equal or better tier overwrites with its non-empty
// values, a poorer tier only fills fields the stored row is missing,
// and an absent incoming value never clears a stored one.
func (s *Store) Upsert(ctx context.Context, opp grants.Opportunity) error {
	if opp.ID == "" {
		return fmt.Errorf("opportunity id is required")
	}
	query := buildUpsertQuery(s.table)

	var raw []byte
	if len(opp.RawSource) > 0 {
		raw = opp.RawSource
	}
	args := []any{
		opp.ID,
		opp.Number,
		opp.Title,
		opp.AgencyName,
		opp.AgencyCode,
		opp.Description,
		opp.Status,
		opp.DocType,
		opp.OpenDate,
		opp.CloseDate,
		opp.ArchiveDate,
		opp.AwardFloor,
		opp.AwardCeiling,
		opp.EstimatedFunding,
		opp.ExpectedAwards,
		opp.Category,
		opp.FundingType,
		opp.CFDANumbers,
		opp.CostSharing,
		opp.OpportunityURL,
		string(opp.SourceTier),
		raw,
		s.clock.Now(),
		opp.SourceTier.Fidelity(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

const selectColumns = `id, number, title, agency_name, agency_code, description, status,
	doc_type, open_date, close_date, archive_date,
	award_floor, award_ceiling, estimated_total_program_funding, expected_number_of_awards,
	category, funding_type, cfda_numbers, cost_sharing,
	opportunity_url, source_tier, last_updated`

// Get retrieves one record by id.
func (s *Store) Get(ctx context.Context, id string) (grants.Opportunity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", selectColumns, s.table)
	opp, err := scanOpportunity(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return grants.Opportunity{}, grants.ErrNotFound
	}
	if err != nil {
		return grants.Opportunity{}, fmt.Errorf("get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// List returns one page, newest close date first, plus pagination totals.
func (s *Store) List(ctx context.Context, filter grants.Filter, page grants.PageRequest) (grants.PageResult, error) {
	where, args := buildFilter(filter)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return grants.PageResult{}, fmt.Errorf("count opportunities: %w", err)
	}

	listQuery := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY close_date DESC, id ASC LIMIT $%d OFFSET $%d",
		selectColumns, s.table, where, len(args)+1, len(args)+2,
	)
	rows, err := s.pool.Query(ctx, listQuery, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return grants.PageResult{}, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []grants.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return grants.PageResult{}, fmt.Errorf("scan opportunity row: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return grants.PageResult{}, fmt.Errorf("iterate opportunities: %w", err)
	}

	pages := 0
	if page.Limit > 0 {
		pages = (total + page.Limit - 1) / page.Limit
	}
	return grants.PageResult{Total: total, Pages: pages, Opportunities: opps}, nil
}

func buildFilter(f grants.Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value string) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Search != "" {
		add("(title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%[1]d || '%%' OR agency_name ILIKE '%%' || $%[1]d || '%%')", f.Search)
	}
	if f.Agency != "" {
		add("(agency_name ILIKE '%%' || $%d || '%%' OR agency_code ILIKE '%%' || $%[1]d || '%%')", f.Agency)
	}
	if f.Category != "" {
		add("category ILIKE '%%' || $%d || '%%'", f.Category)
	}
	if f.Status != "" {
		add("status ILIKE '%%' || $%d || '%%'", f.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOpportunity(row pgx.Row) (grants.Opportunity, error) {
	var opp grants.Opportunity
	var tier string
	err := row.Scan(
		&opp.ID, &opp.Number, &opp.Title, &opp.AgencyName, &opp.AgencyCode,
		&opp.Description, &opp.Status, &opp.DocType, &opp.OpenDate,
		&opp.CloseDate, &opp.ArchiveDate, &opp.AwardFloor, &opp.AwardCeiling,
		&opp.EstimatedFunding, &opp.ExpectedAwards, &opp.Category,
		&opp.FundingType, &opp.CFDANumbers, &opp.CostSharing,
		&opp.OpportunityURL, &tier, &opp.LastUpdated,
	)
	if err != nil {
		return grants.Opportunity{}, err
	}
	opp.SourceTier = grants.Tier(tier)
	return opp, nil
}

// DeleteOlderThan removes records last touched before the retention
// window and returns how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAgeDays int) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -maxAgeDays)
	query := fmt.Sprintf("DELETE FROM %s WHERE last_updated < $1", s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
