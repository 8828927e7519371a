package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/ecg.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// BuildInfo describes one catalog build.
type BuildInfo struct {
	ID           uuid.UUID `json:"build_id"`
	Root         string    `json:"root"`
	WindowSec    float64   `json:"window_sec"`
	StepSec      float64   `json:"step_sec"`
	SegmentCount int       `json:"segment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists catalog builds in SQLite. Reads always see the most recent
// build.
type Store struct {
	*sql.DB
	clock timeutil.Clock
}

// OpenStore opens the database at path and applies pending migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{DB: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the clock that stamps new builds.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// MigrateUp runs all pending migrations. It is a no-op when the schema is
// current.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version, 0 when unmigrated.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// SaveBuild stores segs as a new build and returns its id.
func (s *Store) SaveBuild(root string, opts SegmentOptions, segs []Segment) (uuid.UUID, error) {
	id := uuid.New()
	tx, err := s.Begin()
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO catalog_builds (build_id, root, window_sec, step_sec, segment_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), root, opts.WindowSec, opts.StepSec, len(segs), s.clock.Now().UnixNano(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert build: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO segments (build_id, segment_id, record_id, npz_path, fs, n_samples, n_leads, leads, start_s, end_s, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, err
	}
	defer stmt.Close()
	for i, sg := range segs {
		if _, err := stmt.Exec(id.String(), sg.ID, sg.RecordID, sg.Path, sg.FS, sg.NSamples, sg.NLeads,
			strings.Join(sg.Leads, ","), sg.StartS, sg.EndS, i); err != nil {
			return uuid.Nil, fmt.Errorf("insert segment %s: %w", sg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// LatestBuild returns the most recent build. sql.ErrNoRows is returned
// when nothing has been built yet.
func (s *Store) LatestBuild() (BuildInfo, error) {
	var b BuildInfo
	var id string
	var created int64
	err := s.QueryRow(
		`SELECT build_id, root, window_sec, step_sec, segment_count, created_at
		 FROM catalog_builds ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id, &b.Root, &b.WindowSec, &b.StepSec, &b.SegmentCount, &created)
	if err != nil {
		return BuildInfo{}, err
	}
	b.CreatedAt = time.Unix(0, created).UTC()
	if b.ID, err = uuid.Parse(id); err != nil {
		return BuildInfo{}, fmt.Errorf("build id %q: %w", id, err)
	}
	return b, nil
}

const segmentColumns = `segment_id, record_id, npz_path, fs, n_samples, n_leads, leads, start_s, end_s`

func scanSegment(sc interface{ Scan(...interface{}) error }) (Segment, error) {
	var sg Segment
	var leads string
	if err := sc.Scan(&sg.ID, &sg.RecordID, &sg.Path, &sg.FS, &sg.NSamples, &sg.NLeads, &leads, &sg.StartS, &sg.EndS); err != nil {
		return Segment{}, err
	}
	if leads != "" {
		sg.Leads = strings.Split(leads, ",")
	}
	return sg, nil
}

// Segments implements Source for the latest build.
func (s *Store) Segments() ([]Segment, error) {
	b, err := s.LatestBuild()
	if errors.Is(err, sql.ErrNoRows) {
		return []Segment{}, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.Query(
		`SELECT `+segmentColumns+` FROM segments WHERE build_id = ? ORDER BY position`, b.ID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segs := []Segment{}
	for rows.Next() {
		sg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segs = append(segs, sg)
	}
	return segs, rows.Err()
}

// Segment implements Source for the latest build.
func (s *Store) Segment(id string) (Segment, error) {
	b, err := s.LatestBuild()
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	if err != nil {
		return Segment{}, err
	}
	sg, err := scanSegment(s.QueryRow(
		`SELECT `+segmentColumns+` FROM segments WHERE build_id = ? AND segment_id = ? ORDER BY position LIMIT 1`, b.ID.String(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	return sg, err
}
