package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

const (
	uniqueViolation   = "23505"
	subjectsNameKey   = "subjects_name_key"
	materialColumns   = `m.id, m.topic_id, m.file_name, m.file_ref, m.uploaded_by, m.uploaded_at, m.downloads_count`
	hitColumns        = materialColumns + `, s.id, s.name, t.name`
	hitJoin           = ` FROM materials m JOIN topics t ON t.id = m.topic_id JOIN subjects s ON s.id = t.subject_id`
	emptyTopicDeleter = `DELETE FROM topics WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM materials WHERE topic_id = $1)`
)

// Store is a catalog.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ catalog.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetSubjectByName(ctx context.Context, name string) (catalog.Subject, error) {
	var sub catalog.Subject
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM subjects WHERE name = $1`, name).Scan(&sub.ID, &sub.Name)
	if err != nil {
		return catalog.Subject{}, notFound(err, "subject %q", name)
	}
	return sub, nil
}

func (s *Store) ListSubjects(ctx context.Context) ([]catalog.Subject, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Subject, error) {
		var sub catalog.Subject
		err := row.Scan(&sub.ID, &sub.Name)
		return sub, err
	})
}

func (s *Store) InsertSubject(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO subjects (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		if isDuplicate(err, subjectsNameKey) {
			return 0, fmt.Errorf("subject %q: %w", name, catalog.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert subject: %w", err)
	}
	return id, nil
}

func (s *Store) GetTopic(ctx context.Context, subjectID int64, name string, caseInsensitive bool) (catalog.Topic, error) {
	query := `SELECT id, subject_id, name FROM topics WHERE subject_id = $1 AND name = $2 ORDER BY id LIMIT 1`
	if caseInsensitive {
		query = `SELECT id, subject_id, name FROM topics WHERE subject_id = $1 AND lower(name) = lower($2) ORDER BY id LIMIT 1`
	}
	var t catalog.Topic
	if err := s.pool.QueryRow(ctx, query, subjectID, name).Scan(&t.ID, &t.SubjectID, &t.Name); err != nil {
		return catalog.Topic{}, notFound(err, "topic %q", name)
	}
	return t, nil
}

func (s *Store) ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, subject_id, name FROM topics WHERE subject_id = $1 ORDER BY name`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Topic, error) {
		var t catalog.Topic
		err := row.Scan(&t.ID, &t.SubjectID, &t.Name)
		return t, err
	})
}

func (s *Store) InsertTopic(ctx context.Context, subjectID int64, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO topics (subject_id, name) VALUES ($1, $2) RETURNING id`, subjectID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

func (s *Store) CountMaterials(ctx context.Context, topicID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM materials WHERE topic_id = $1`, topicID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count materials: %w", err)
	}
	return n, nil
}

func (s *Store) ListMaterials(ctx context.Context, topicID int64) ([]catalog.Material, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials m WHERE m.topic_id = $1 ORDER BY m.id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Material, error) {
		return scanMaterial(row)
	})
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (catalog.Material, error) {
	m, err := scanMaterial(s.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials m WHERE m.id = $1`, id))
	if err != nil {
		return catalog.Material{}, notFound(err, "material %d", id)
	}
	return m, nil
}

func (s *Store) InsertMaterial(ctx context.Context, in catalog.NewMaterial) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO materials (topic_id, file_name, file_ref, uploaded_by, uploaded_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, now())) RETURNING id`,
		in.TopicID, in.FileName, in.FileRef, in.UploadedBy, nullTime(in),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return requireAffected(tag, "material %d", id)
}

// DeleteMaterialCascade locks the topic row so concurrent deletes and inserts
// under the same topic serialize behind it.
func (s *Store) DeleteMaterialCascade(ctx context.Context, topicID, materialID int64) (catalog.DeleteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM topics WHERE id = $1 FOR UPDATE`, topicID).Scan(&locked); err != nil {
		return catalog.DeleteResult{}, notFound(err, "topic %d", topicID)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM materials WHERE id = $1 AND topic_id = $2`, materialID, topicID)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("delete material: %w", err)
	}
	if err := requireAffected(tag, "material %d in topic %d", materialID, topicID); err != nil {
		return catalog.DeleteResult{}, err
	}
	tag, err = tx.Exec(ctx, emptyTopicDeleter, topicID)
	if err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("delete empty topic: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return catalog.DeleteResult{}, fmt.Errorf("commit: %w", err)
	}
	return catalog.DeleteResult{MaterialID: materialID, TopicID: topicID, TopicDeleted: tag.RowsAffected() > 0}, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, id int64, fileName, fileRef string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE materials SET file_name = $2, file_ref = $3 WHERE id = $1`, id, fileName, fileRef)
	if err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	return requireAffected(tag, "material %d", id)
}

func (s *Store) IncrementDownloads(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE materials SET downloads_count = downloads_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	return requireAffected(tag, "material %d", id)
}

func (s *Store) SearchMaterials(ctx context.Context, substring string) ([]catalog.SearchHit, error) {
	return s.queryHits(ctx, `SELECT `+hitColumns+hitJoin+`
		WHERE lower(t.name) LIKE $1 ESCAPE '\'
		   OR lower(s.name) LIKE $1 ESCAPE '\'
		   OR lower(m.file_name) LIKE $1 ESCAPE '\'
		ORDER BY s.name, t.name, m.id`, catalog.ContainsPattern(substring))
}

func (s *Store) TopDownloads(ctx context.Context, limit int) ([]catalog.SearchHit, error) {
	return s.queryHits(ctx, `SELECT `+hitColumns+hitJoin+`
		ORDER BY m.downloads_count DESC, m.id
		LIMIT $1`, limit)
}

func (s *Store) queryHits(ctx context.Context, query string, args ...any) ([]catalog.SearchHit, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.SearchHit, error) {
		var h catalog.SearchHit
		err := row.Scan(
			&h.Material.ID, &h.Material.TopicID, &h.Material.FileName, &h.Material.FileRef,
			&h.Material.UploadedBy, &h.Material.UploadedAt, &h.Material.Downloads,
			&h.SubjectID, &h.SubjectName, &h.TopicName,
		)
		return h, err
	})
}

func (s *Store) IsTeacher(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teachers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return exists, nil
}

func (s *Store) AddTeacher(ctx context.Context, userID int64) error {
	if _, err := s.pool.Exec(ctx, `INSERT INTO teachers (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("add teacher: %w", err)
	}
	return nil
}

func scanMaterial(row pgx.Row) (catalog.Material, error) {
	var m catalog.Material
	err := row.Scan(&m.ID, &m.TopicID, &m.FileName, &m.FileRef, &m.UploadedBy, &m.UploadedAt, &m.Downloads)
	return m, err
}

func nullTime(in catalog.NewMaterial) any {
	if in.UploadedAt.IsZero() {
		return nil
	}
	return in.UploadedAt
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, catalog.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func requireAffected(tag pgconn.CommandTag, format string, args ...any) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(format+": %w", append(args, catalog.ErrNotFound)...)
	}
	return nil
}

func isDuplicate(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
