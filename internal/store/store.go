// Package store persists evaluation results and answers history queries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/pavelanni/essayeval/internal/model"

	_ "modernc.org/sqlite"
)

// Default and maximum listing sizes.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Repository is implemented by every result store.
type Repository interface {
	Save(ctx context.Context, questionText string, r *model.EvaluationResult) error
	Get(ctx context.Context, id string) (*model.EvaluationResult, error)
	List(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationSummary, error)
	Results(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationResult, error)
	AverageScore(ctx context.Context, examType string) (float64, int, error)
	Close() error
}

// Store is the SQLite result store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schemaVersion = "1"

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		exam_type TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		question_text TEXT NOT NULL DEFAULT '',
		overall_score INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		result TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_exam_type ON evaluations(exam_type, created_at);

	CREATE TABLE IF NOT EXISTS store_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata(context.Background(), "schema_version", schemaVersion)
}

// Save stores a result, replacing any earlier result with the same id.
func (s *Store) Save(ctx context.Context, questionText string, r *model.EvaluationResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, exam_type, subject, question_text, overall_score, created_at, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET exam_type = excluded.exam_type, subject = excluded.subject,
		   question_text = excluded.question_text, overall_score = excluded.overall_score,
		   created_at = excluded.created_at, result = excluded.result`,
		r.ID, r.ExamType, r.Subject, questionText, r.OverallScore, r.CreatedAt.UTC(), string(data),
	)
	if err != nil {
		return fmt.Errorf("save evaluation %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the result with the given id, or nil if there is none.
func (s *Store) Get(ctx context.Context, id string) (*model.EvaluationResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM evaluations WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.EvaluationResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode evaluation %s: %w", id, err)
	}
	return &r, nil
}

// filtered applies the filter, ordering and limit shared by the listing
// queries. Empty strings mean no filtering on that field.
func filtered(b sq.SelectBuilder, f model.HistoryFilter) sq.SelectBuilder {
	if f.ExamType != "" {
		b = b.Where(sq.Eq{"exam_type": f.ExamType})
	}
	if f.Subject != "" {
		b = b.Where(sq.Eq{"subject": f.Subject})
	}
	return b.OrderBy("created_at DESC", "id").Limit(uint64(clampLimit(f.Limit)))
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return min(n, MaxListLimit)
}

// List returns result summaries, newest first.
func (s *Store) List(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationSummary, error) {
	query, args, err := filtered(
		sq.Select("id", "exam_type", "subject", "question_text", "overall_score", "created_at").From("evaluations"), f,
	).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := []model.EvaluationSummary{}
	for rows.Next() {
		var e model.EvaluationSummary
		var created time.Time
		if err := rows.Scan(&e.ID, &e.ExamType, &e.Subject, &e.QuestionText, &e.OverallScore, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = created.UTC()
		summaries = append(summaries, e)
	}
	return summaries, rows.Err()
}

// Results returns full results, newest first.
func (s *Store) Results(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationResult, error) {
	query, args, err := filtered(sq.Select("id", "result").From("evaluations"), f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build results query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []model.EvaluationResult{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var r model.EvaluationResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode evaluation %s: %w", id, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// AverageScore returns the mean overall score and the number of stored
// results for examType. An empty examType covers all results.
func (s *Store) AverageScore(ctx context.Context, examType string) (float64, int, error) {
	b := sq.Select("AVG(overall_score)", "COUNT(*)").From("evaluations")
	if examType != "" {
		b = b.Where(sq.Eq{"exam_type": examType})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build average query: %w", err)
	}
	var avg sql.NullFloat64
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&avg, &n); err != nil {
		return 0, 0, fmt.Errorf("average score: %w", err)
	}
	return avg.Float64, n, nil
}

// Count returns the number of stored results.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&count)
	return count, err
}
