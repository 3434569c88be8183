package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/synapirt/internal/services"
)

const memoryPath = ":memory:"

// Open opens (creating if needed) the sqlite database at path. ":memory:"
// gives a private in-memory database on a single connection.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file::memory:?_busy_timeout=5000&_foreign_keys=1"
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_foreign_keys=1", filepath.ToSlash(path))
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ services.CalibrationStore = (*SQLiteStore)(nil)
	_ services.AnalyticsStore   = (*SQLiteStore)(nil)
	_ services.AnalystStore     = (*SQLiteStore)(nil)
	_ services.ScaleWriter      = (*SQLiteStore)(nil)
)

func NewSQLiteStore(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger.With("component", "sqlite")}, nil
}

func (s *SQLiteStore) logErr(op string, err error) error {
	if err != nil {
		s.logger.Error("sqlite store", "op", op, "error", err)
	}
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (s *SQLiteStore) AddScale(sc *services.Scale) error {
	_, err := s.db.Exec(`INSERT INTO scales(id, name, points, created_at) VALUES (?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.Points, formatTime(sc.CreatedAt))
	return s.logErr("add scale", err)
}

func (s *SQLiteStore) GetScale(id string) (*services.Scale, error) {
	var sc services.Scale
	var created string
	err := s.db.QueryRow(`SELECT id, name, points, created_at FROM scales WHERE id = ?`, id).
		Scan(&sc.ID, &sc.Name, &sc.Points, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("get scale", err)
	}
	sc.CreatedAt = parseTime(created)
	return &sc, nil
}

func (s *SQLiteStore) AddItem(it *services.Item) error {
	_, err := s.db.Exec(`INSERT INTO items(id, scale_id, stem, reverse_scored, position) VALUES (?, ?, ?, ?, ?)`,
		it.ID, it.ScaleID, toNullString(it.Stem), boolToInt64(it.ReverseScored), it.Position)
	return s.logErr("add item", err)
}

func (s *SQLiteStore) ListItems(scaleID string) ([]*services.Item, error) {
	rows, err := s.db.Query(`SELECT id, scale_id, stem, reverse_scored, position FROM items WHERE scale_id = ? ORDER BY position, id`, scaleID)
	if err != nil {
		return nil, s.logErr("list items", err)
	}
	defer rows.Close()
	var out []*services.Item
	for rows.Next() {
		var it services.Item
		var stem sql.NullString
		var reverse int64
		if err := rows.Scan(&it.ID, &it.ScaleID, &stem, &reverse, &it.Position); err != nil {
			return nil, s.logErr("scan item", err)
		}
		it.Stem = stem.String
		it.ReverseScored = reverse != 0
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddParticipant(p *services.Participant) error {
	_, err := s.db.Exec(`INSERT INTO participants(id, scale_id, external_id) VALUES (?, ?, ?)`,
		p.ID, p.ScaleID, toNullString(p.External))
	return s.logErr("add participant", err)
}

// AddResponses writes rs in one transaction; a repeated answer replaces the
// earlier one.
func (s *SQLiteStore) AddResponses(rs []*services.Response) error {
	tx, err := s.db.Begin()
	if err != nil {
		return s.logErr("begin responses", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO responses(participant_id, item_id, raw_value, score_value, submitted_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return s.logErr("prepare responses", err)
	}
	defer stmt.Close()
	for _, r := range rs {
		if _, err := stmt.Exec(r.ParticipantID, r.ItemID, r.RawValue, r.ScoreValue, formatTime(r.SubmittedAt)); err != nil {
			_ = tx.Rollback()
			return s.logErr("insert response", err)
		}
	}
	return s.logErr("commit responses", tx.Commit())
}

func (s *SQLiteStore) ListResponsesByScale(scaleID string) ([]*services.Response, error) {
	rows, err := s.db.Query(`SELECT r.participant_id, r.item_id, r.raw_value, r.score_value, r.submitted_at
		FROM responses r JOIN items i ON i.id = r.item_id
		WHERE i.scale_id = ? ORDER BY r.participant_id, i.position`, scaleID)
	if err != nil {
		return nil, s.logErr("list responses", err)
	}
	defer rows.Close()
	var out []*services.Response
	for rows.Next() {
		var r services.Response
		var submitted string
		if err := rows.Scan(&r.ParticipantID, &r.ItemID, &r.RawValue, &r.ScoreValue, &submitted); err != nil {
			return nil, s.logErr("scan response", err)
		}
		r.SubmittedAt = parseTime(submitted)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAnalyst(a *services.Analyst) error {
	_, err := s.db.Exec(`INSERT INTO analysts(id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Email, a.PassHash, formatTime(a.CreatedAt))
	return s.logErr("add analyst", err)
}

func (s *SQLiteStore) FindAnalystByEmail(email string) (*services.Analyst, error) {
	var a services.Analyst
	var created string
	err := s.db.QueryRow(`SELECT id, email, pass_hash, created_at FROM analysts WHERE email = ?`, email).
		Scan(&a.ID, &a.Email, &a.PassHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("find analyst", err)
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func (s *SQLiteStore) SaveCalibrationRun(run *services.CalibrationRun) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO calibration_runs(id, scale_id, source, status, people, items, dimensions, categories, final_loss, alpha, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, toNullString(run.ScaleID), run.Source, run.Status, run.People, run.Items, run.Dimensions, run.Categories,
		run.FinalLoss, run.Alpha, toNullString(run.Error), formatTime(run.StartedAt), formatTime(run.CompletedAt))
	return s.logErr("save calibration run", err)
}

func (s *SQLiteStore) GetCalibrationRun(id string) (*services.CalibrationRun, error) {
	var run services.CalibrationRun
	var scaleID, errText sql.NullString
	var started, completed string
	err := s.db.QueryRow(`SELECT id, scale_id, source, status, people, items, dimensions, categories, final_loss, alpha, error, started_at, completed_at
		FROM calibration_runs WHERE id = ?`, id).
		Scan(&run.ID, &scaleID, &run.Source, &run.Status, &run.People, &run.Items, &run.Dimensions, &run.Categories,
			&run.FinalLoss, &run.Alpha, &errText, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("get calibration run", err)
	}
	run.ScaleID, run.Error = scaleID.String, errText.String
	run.StartedAt, run.CompletedAt = parseTime(started), parseTime(completed)
	return &run, nil
}

// ListCalibrationRuns returns the runs of a scale, newest first.
func (s *SQLiteStore) ListCalibrationRuns(scaleID string) ([]*services.CalibrationRun, error) {
	rows, err := s.db.Query(`SELECT id FROM calibration_runs WHERE scale_id = ? ORDER BY started_at DESC`, scaleID)
	if err != nil {
		return nil, s.logErr("list calibration runs", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*services.CalibrationRun, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetCalibrationRun(id)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}
