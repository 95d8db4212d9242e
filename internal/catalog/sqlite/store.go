package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

// fold lowercases text with Unicode rules; SQLite's lower() only knows ASCII.
const foldFunc = "fold"

func init() {
	sqlitedrv.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

// Store is a catalog.Store backed by a SQLite database opened with db.OpenSQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ catalog.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetSubjectByName(ctx context.Context, name string) (catalog.Subject, error) {
	var sub catalog.Subject
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM subjects WHERE name = ?`, name).Scan(&sub.ID, &sub.Name)
	if err != nil {
		return catalog.Subject{}, notFound(err, "subject %q", name)
	}
	return sub, nil
}

func (s *Store) ListSubjects(ctx context.Context) ([]catalog.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []catalog.Subject
	for rows.Next() {
		var sub catalog.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) InsertSubject(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO subjects (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("subject %q: %w", name, catalog.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert subject: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetTopic(ctx context.Context, subjectID int64, name string, caseInsensitive bool) (catalog.Topic, error) {
	query := `SELECT id, subject_id, name FROM topics WHERE subject_id = ? AND name = ? ORDER BY id LIMIT 1`
	arg := name
	if caseInsensitive {
		query = `SELECT id, subject_id, name FROM topics WHERE subject_id = ? AND fold(name) = ? ORDER BY id LIMIT 1`
		arg = strings.ToLower(name)
	}
	var t catalog.Topic
	if err := s.db.QueryRowContext(ctx, query, subjectID, arg).Scan(&t.ID, &t.SubjectID, &t.Name); err != nil {
		return catalog.Topic{}, notFound(err, "topic %q", name)
	}
	return t, nil
}

func (s *Store) ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subject_id, name FROM topics WHERE subject_id = ? ORDER BY name`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []catalog.Topic
	for rows.Next() {
		var t catalog.Topic
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) InsertTopic(ctx context.Context, subjectID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO topics (subject_id, name) VALUES (?, ?)`, subjectID, name)
	if err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

func (s *Store) CountMaterials(ctx context.Context, topicID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM materials WHERE topic_id = ?`, topicID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count materials: %w", err)
	}
	return n, nil
}

const materialColumns = `m.id, m.topic_id, m.file_name, m.file_ref, m.uploaded_by, m.uploaded_at, m.downloads_count`

func (s *Store) ListMaterials(ctx context.Context, topicID int64) ([]catalog.Material, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+materialColumns+` FROM materials m WHERE m.topic_id = ? ORDER BY m.id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var out []catalog.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (catalog.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials m WHERE m.id = ?`, id))
	if err != nil {
		return catalog.Material{}, notFound(err, "material %d", id)
	}
	return m, nil
}

func (s *Store) InsertMaterial(ctx context.Context, in catalog.NewMaterial) (int64, error) {
	uploadedAt := in.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (topic_id, file_name, file_ref, uploaded_by, uploaded_at, downloads_count) VALUES (?, ?, ?, ?, ?, 0)`,
		in.TopicID, in.FileName, in.FileRef, in.UploadedBy, uploadedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DeleteMaterial(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return requireAffected(res, "material %d", id)
}

func (s *Store) DeleteMaterialCascade(ctx context.Context, topicID, materialID int64) (catalog.DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE id = ? AND topic_id = ?`, materialID, topicID)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("delete material: %w", err)
	}
	if err := requireAffected(res, "material %d in topic %d", materialID, topicID); err != nil {
		return catalog.DeleteResult{}, err
	}
	res, err = tx.ExecContext(ctx,
		`DELETE FROM topics WHERE id = ? AND NOT EXISTS (SELECT 1 FROM materials WHERE topic_id = ?)`,
		topicID, topicID,
	)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("delete empty topic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return catalog.DeleteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("commit: %w", err)
	}
	return catalog.DeleteResult{MaterialID: materialID, TopicID: topicID, TopicDeleted: n > 0}, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, id int64, fileName, fileRef string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE materials SET file_name = ?, file_ref = ? WHERE id = ?`, fileName, fileRef, id)
	if err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	return requireAffected(res, "material %d", id)
}

func (s *Store) IncrementDownloads(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE materials SET downloads_count = downloads_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	return requireAffected(res, "material %d", id)
}

const hitQuery = `SELECT ` + materialColumns + `, s.id, s.name, t.name
FROM materials m
JOIN topics t ON t.id = m.topic_id
JOIN subjects s ON s.id = t.subject_id`

func (s *Store) SearchMaterials(ctx context.Context, substring string) ([]catalog.SearchHit, error) {
	pattern := catalog.ContainsPattern(substring)
	return s.queryHits(ctx, hitQuery+`
WHERE fold(t.name) LIKE ? ESCAPE '\'
   OR fold(s.name) LIKE ? ESCAPE '\'
   OR fold(m.file_name) LIKE ? ESCAPE '\'
ORDER BY s.name, t.name, m.id`, pattern, pattern, pattern)
}

func (s *Store) TopDownloads(ctx context.Context, limit int) ([]catalog.SearchHit, error) {
	return s.queryHits(ctx, hitQuery+`
ORDER BY m.downloads_count DESC, m.id
LIMIT ?`, limit)
}

func (s *Store) queryHits(ctx context.Context, query string, args ...any) ([]catalog.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	var out []catalog.SearchHit
	for rows.Next() {
		var (
			h          catalog.SearchHit
			uploadedAt string
		)
		if err := rows.Scan(
			&h.Material.ID, &h.Material.TopicID, &h.Material.FileName, &h.Material.FileRef,
			&h.Material.UploadedBy, &uploadedAt, &h.Material.Downloads,
			&h.SubjectID, &h.SubjectName, &h.TopicName,
		); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if h.Material.UploadedAt, err = parseTime(uploadedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) IsTeacher(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM teachers WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return exists, nil
}

func (s *Store) AddTeacher(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO teachers (user_id, granted_at) VALUES (?, ?)`,
		userID, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add teacher: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (catalog.Material, error) {
	var (
		m          catalog.Material
		uploadedAt string
	)
	if err := row.Scan(&m.ID, &m.TopicID, &m.FileName, &m.FileRef, &m.UploadedBy, &uploadedAt, &m.Downloads); err != nil {
		return catalog.Material{}, err
	}
	t, err := parseTime(uploadedAt)
	if err != nil {
		return catalog.Material{}, err
	}
	m.UploadedAt = t
	return m, nil
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse uploaded_at %q: %w", raw, err)
	}
	return t, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, catalog.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func requireAffected(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, catalog.ErrNotFound)...)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
