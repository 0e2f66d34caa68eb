/*
Package sqlite provides a SQLite-backed implementation of insights.Store.

PURPOSE:
  Persists clients, monthly records and achievement unlocks. Both uniqueness
  invariants live in the schema as UNIQUE indexes; application code never
  decides uniqueness on its own.

KEY TABLES:
  clients:             Provisioned externally; total_points is the only
                       column this engine writes
  achievements:        Static catalog, seeded on migrate
  monthly_records:     One row per (client_id, year, month), immutable
  client_achievements: One row per (client_id, achievement_code), immutable

INDEXES:
  - idx_records_client_period: UNIQUE, enforces one record per period
  - idx_unlocks_client_code:   UNIQUE, enforces one unlock per achievement
  - idx_records_client_order:  History reads (hot path)

CONCURRENCY:
  No in-process locking. Concurrent writers race on the UNIQUE indexes and
  the loser gets a constraint error, mapped to the engine's sentinels.
  File databases run in WAL mode with a busy timeout. ":memory:" is pinned
  to one connection because every connection would get its own database.

POINTS:
  Award inserts the unlock and runs
    UPDATE clients SET total_points = total_points + ?
  in the same transaction. A duplicate unlock rolls back before any credit.

USAGE:
  store, err := sqlite.New("./data/insights.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - insights/store.go: Interface definition
  - insights/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/insights"
)

// Store implements insights.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seedCatalog(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed achievements: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT,
		segment TEXT,
		total_points INTEGER NOT NULL DEFAULT 0 CHECK (total_points >= 0),
		monthly_goal TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS achievements (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		icon TEXT NOT NULL,
		points INTEGER NOT NULL
	);

	-- Records are immutable from this engine's side
	CREATE TABLE IF NOT EXISTS monthly_records (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		revenue TEXT NOT NULL,
		unit_count INTEGER,
		ticket_average TEXT,
		notes TEXT,
		highlight TEXT,
		investment TEXT,
		submitted_at TEXT NOT NULL
	);

	-- CRITICAL: one record per client per period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_client_period
		ON monthly_records(client_id, year, month);

	CREATE INDEX IF NOT EXISTS idx_records_client_order
		ON monthly_records(client_id, year DESC, month DESC);

	CREATE TABLE IF NOT EXISTS client_achievements (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		achievement_code TEXT NOT NULL REFERENCES achievements(code),
		record_id TEXT REFERENCES monthly_records(id),
		unlocked_at TEXT NOT NULL
	);

	-- CRITICAL: one unlock per client per achievement, ever
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unlocks_client_code
		ON client_achievements(client_id, achievement_code);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seedCatalog upserts the static catalog so point values follow the code.
func (s *Store) seedCatalog(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, def := range insights.Catalog {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO achievements (code, name, description, icon, points)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				icon = excluded.icon,
				points = excluded.points
		`, def.Code, def.Name, def.Description, def.Icon, def.Points)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// CLIENTS
// =============================================================================

// SaveClient upserts a client. total_points is never overwritten here.
func (s *Store) SaveClient(ctx context.Context, c insights.Client) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO clients (id, name, company_name, phone, email, segment, total_points, monthly_goal, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			company_name = excluded.company_name,
			phone = excluded.phone,
			email = excluded.email,
			segment = excluded.segment,
			monthly_goal = excluded.monthly_goal,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.CompanyName, c.Phone,
		nullString(c.Email), nullString(c.Segment),
		c.TotalPoints, nullDecimal(c.MonthlyGoal), c.IsActive,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetClient returns insights.ErrClientNotFound when the id is unknown.
func (s *Store) GetClient(ctx context.Context, id insights.ClientID) (*insights.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, company_name, phone, email, segment, total_points, monthly_goal, is_active, created_at
		FROM clients WHERE id = ?`, id)

	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, insights.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// ListActiveClients returns active clients ordered by name.
func (s *Store) ListActiveClients(ctx context.Context) ([]insights.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company_name, phone, email, segment, total_points, monthly_goal, is_active, created_at
		FROM clients WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []insights.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*insights.Client, error) {
	var (
		c         insights.Client
		email     sql.NullString
		segment   sql.NullString
		goal      sql.NullString
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.CompanyName, &c.Phone, &email, &segment,
		&c.TotalPoints, &goal, &c.IsActive, &createdAt); err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Segment = segment.String
	c.MonthlyGoal = parseNullDecimal(goal)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordExists is the advisory pre-check.
func (s *Store) RecordExists(ctx context.Context, clientID insights.ClientID, period insights.Period) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM monthly_records WHERE client_id = ? AND year = ? AND month = ?",
		clientID, period.Year, int(period.Month),
	).Scan(&count)
	return count > 0, err
}

// CreateRecord inserts rec. The unique index decides duplicates.
func (s *Store) CreateRecord(ctx context.Context, rec insights.PeriodRecord) error {
	query := `
		INSERT INTO monthly_records
		(id, client_id, year, month, revenue, unit_count, ticket_average, notes, highlight, investment, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var units sql.NullInt64
	if rec.UnitCount != nil {
		units = sql.NullInt64{Int64: int64(*rec.UnitCount), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ClientID, rec.Period.Year, int(rec.Period.Month),
		rec.Revenue.String(), units, nullDecimal(rec.TicketAverage),
		nullString(rec.Notes), nullString(rec.Highlight), nullDecimal(rec.Investment),
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return insights.ErrDuplicateSubmission
		}
		if isForeignKeyError(err) {
			return insights.ErrClientNotFound
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// History returns all records, most recent period first.
func (s *Store) History(ctx context.Context, clientID insights.ClientID) ([]insights.PeriodRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, client_id, year, month, revenue, unit_count, ticket_average, notes, highlight, investment, submitted_at
		FROM monthly_records
		WHERE client_id = ?
		ORDER BY year DESC, month DESC
	`, clientID)
}

// RecentHistory returns at most limit records, most recent first.
func (s *Store) RecentHistory(ctx context.Context, clientID insights.ClientID, limit int) ([]insights.PeriodRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, client_id, year, month, revenue, unit_count, ticket_average, notes, highlight, investment, submitted_at
		FROM monthly_records
		WHERE client_id = ?
		ORDER BY year DESC, month DESC
		LIMIT ?
	`, clientID, limit)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]insights.PeriodRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []insights.PeriodRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (insights.PeriodRecord, error) {
	var (
		rec         insights.PeriodRecord
		month       int
		revenue     string
		units       sql.NullInt64
		ticket      sql.NullString
		notes       sql.NullString
		highlight   sql.NullString
		investment  sql.NullString
		submittedAt string
	)

	err := rows.Scan(&rec.ID, &rec.ClientID, &rec.Period.Year, &month, &revenue,
		&units, &ticket, &notes, &highlight, &investment, &submittedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Period.Month = time.Month(month)
	rec.Revenue = insights.MustParseDecimal(revenue)
	if units.Valid {
		n := int(units.Int64)
		rec.UnitCount = &n
	}
	rec.TicketAverage = parseNullDecimal(ticket)
	rec.Notes = notes.String
	rec.Highlight = highlight.String
	rec.Investment = parseNullDecimal(investment)
	rec.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
	return rec, nil
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// UnlockedCodes returns the set of codes the client holds.
func (s *Store) UnlockedCodes(ctx context.Context, clientID insights.ClientID) (map[insights.AchievementCode]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT achievement_code FROM client_achievements WHERE client_id = ?", clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	codes := make(map[insights.AchievementCode]bool)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes[insights.AchievementCode(code)] = true
	}
	return codes, rows.Err()
}

// Award inserts the unlock and credits points in one transaction.
func (s *Store) Award(ctx context.Context, unlock insights.AchievementUnlock, points int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO client_achievements (id, client_id, achievement_code, record_id, unlocked_at)
		VALUES (?, ?, ?, ?, ?)
	`, unlock.ID, unlock.ClientID, unlock.Code, nullString(string(unlock.RecordID)),
		unlock.UnlockedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return insights.ErrAlreadyUnlocked
		}
		if isForeignKeyError(err) {
			return insights.ErrClientNotFound
		}
		return fmt.Errorf("failed to insert unlock: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE clients SET total_points = total_points + ? WHERE id = ?",
		points, unlock.ClientID)
	if err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return insights.ErrClientNotFound
	}

	return tx.Commit()
}

// Unlocks returns the client's unlocks, newest first.
func (s *Store) Unlocks(ctx context.Context, clientID insights.ClientID) ([]insights.AchievementUnlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, achievement_code, record_id, unlocked_at
		FROM client_achievements
		WHERE client_id = ?
		ORDER BY unlocked_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []insights.AchievementUnlock
	for rows.Next() {
		var (
			u          insights.AchievementUnlock
			recordID   sql.NullString
			unlockedAt string
		)
		if err := rows.Scan(&u.ID, &u.ClientID, &u.Code, &recordID, &unlockedAt); err != nil {
			return nil, err
		}
		u.RecordID = insights.RecordID(recordID.String)
		u.UnlockedAt, _ = time.Parse(time.RFC3339Nano, unlockedAt)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d := insights.MustParseDecimal(s.String)
	return &d
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
