package catalog

import (
	"context"
	"time"
)

// Subject is a top-level catalog category such as a course.
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Topic groups materials inside one subject.
type Topic struct {
	ID        int64  `json:"id"`
	SubjectID int64  `json:"subject_id"`
	Name      string `json:"name"`
}

// Material is one catalogued file reference.
type Material struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	FileName   string    `json:"file_name"`
	FileRef    string    `json:"file_ref"`
	UploadedBy int64     `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	Downloads  int64     `json:"downloads_count"`
}

// NewMaterial is the input for inserting a material.
type NewMaterial struct {
	TopicID    int64
	FileName   string
	FileRef    string
	UploadedBy int64
	UploadedAt time.Time
}

// SearchHit is a material joined with its owning topic and subject.
type SearchHit struct {
	Material    Material `json:"material"`
	SubjectID   int64    `json:"subject_id"`
	SubjectName string   `json:"subject_name"`
	TopicName   string   `json:"topic_name"`
}

// Label renders "subject / topic" for display next to a delivered file.
func (h SearchHit) Label() string {
	return h.SubjectName + " / " + h.TopicName
}

// DeleteResult reports what a cascading material delete removed.
type DeleteResult struct {
	MaterialID   int64 `json:"material_id"`
	TopicID      int64 `json:"topic_id"`
	TopicDeleted bool  `json:"topic_deleted"`
}

// Store is the relational storage consumed by Service. Lookups return
// ErrNotFound when nothing matches; InsertSubject returns ErrDuplicate on a
// name collision.
type Store interface {
	Ping(ctx context.Context) error

	GetSubjectByName(ctx context.Context, name string) (Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	InsertSubject(ctx context.Context, name string) (int64, error)

	GetTopic(ctx context.Context, subjectID int64, name string, caseInsensitive bool) (Topic, error)
	ListTopics(ctx context.Context, subjectID int64) ([]Topic, error)
	InsertTopic(ctx context.Context, subjectID int64, name string) (int64, error)
	DeleteTopic(ctx context.Context, id int64) error

	CountMaterials(ctx context.Context, topicID int64) (int, error)
	ListMaterials(ctx context.Context, topicID int64) ([]Material, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	InsertMaterial(ctx context.Context, m NewMaterial) (int64, error)
	DeleteMaterial(ctx context.Context, id int64) error
	// DeleteMaterialCascade removes the material when it belongs to topicID and
	// drops the topic if it became empty, in one transaction.
	DeleteMaterialCascade(ctx context.Context, topicID, materialID int64) (DeleteResult, error)
	UpdateMaterial(ctx context.Context, id int64, fileName, fileRef string) error
	IncrementDownloads(ctx context.Context, id int64) error

	SearchMaterials(ctx context.Context, substring string) ([]SearchHit, error)
	TopDownloads(ctx context.Context, limit int) ([]SearchHit, error)

	IsTeacher(ctx context.Context, userID int64) (bool, error)
	AddTeacher(ctx context.Context, userID int64) error
}
