package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultTopLimit = 10
	MaxTopLimit     = 100
)

// Service implements the catalog mutation protocols on top of a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a catalog service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "catalog")),
		now:    time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SubjectByName looks a subject up by its exact name.
func (s *Service) SubjectByName(ctx context.Context, name string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, fmt.Errorf("%w: subject name is empty", ErrValidation)
	}
	return s.store.GetSubjectByName(ctx, name)
}

func (s *Service) Subjects(ctx context.Context) ([]Subject, error) {
	return s.store.ListSubjects(ctx)
}

// FindOrCreateSubject returns the subject named name, inserting it if absent.
// A concurrent insert of the same name surfaces as ErrDuplicate.
func (s *Service) FindOrCreateSubject(ctx context.Context, name string) (Subject, bool, error) {
	subject, err := s.SubjectByName(ctx, name)
	if err == nil {
		return subject, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Subject{}, false, err
	}
	name = strings.TrimSpace(name)
	id, err := s.store.InsertSubject(ctx, name)
	if err != nil {
		return Subject{}, false, err
	}
	s.logger.Info("subject created", slog.Int64("subject_id", id), slog.String("name", name))
	return Subject{ID: id, Name: name}, true, nil
}

// CreateSubject inserts a new subject and fails with ErrDuplicate if the name is taken.
func (s *Service) CreateSubject(ctx context.Context, name string) (Subject, error) {
	subject, created, err := s.FindOrCreateSubject(ctx, name)
	if err != nil {
		return Subject{}, err
	}
	if !created {
		return Subject{}, fmt.Errorf("subject %q: %w", subject.Name, ErrDuplicate)
	}
	return subject, nil
}

func (s *Service) Topics(ctx context.Context, subjectID int64) ([]Topic, error) {
	if subjectID == 0 {
		return nil, fmt.Errorf("%w: subject", ErrMissingContext)
	}
	return s.store.ListTopics(ctx, subjectID)
}

// TopicByName matches a topic name case-insensitively within a subject.
func (s *Service) TopicByName(ctx context.Context, subjectID int64, name string) (Topic, error) {
	if subjectID == 0 {
		return Topic{}, fmt.Errorf("%w: subject", ErrMissingContext)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Topic{}, fmt.Errorf("%w: topic name is empty", ErrValidation)
	}
	return s.store.GetTopic(ctx, subjectID, name, true)
}

// FindOrCreateTopic reuses a case-insensitive match or inserts a new topic.
func (s *Service) FindOrCreateTopic(ctx context.Context, subjectID int64, name string) (Topic, bool, error) {
	topic, err := s.TopicByName(ctx, subjectID, name)
	if err == nil {
		return topic, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Topic{}, false, err
	}
	name = strings.TrimSpace(name)
	id, err := s.store.InsertTopic(ctx, subjectID, name)
	if err != nil {
		return Topic{}, false, err
	}
	s.logger.Info("topic created", slog.Int64("topic_id", id), slog.Int64("subject_id", subjectID), slog.String("name", name))
	return Topic{ID: id, SubjectID: subjectID, Name: name}, true, nil
}

func (s *Service) Materials(ctx context.Context, topicID int64) ([]Material, error) {
	if topicID == 0 {
		return nil, fmt.Errorf("%w: topic", ErrMissingContext)
	}
	return s.store.ListMaterials(ctx, topicID)
}

// MaterialInTopic returns the material only when it is owned by topicID.
func (s *Service) MaterialInTopic(ctx context.Context, topicID, materialID int64) (Material, error) {
	if topicID == 0 {
		return Material{}, fmt.Errorf("%w: topic", ErrMissingContext)
	}
	m, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return Material{}, err
	}
	if m.TopicID != topicID {
		return Material{}, fmt.Errorf("material %d in topic %d: %w", materialID, topicID, ErrNotFound)
	}
	return m, nil
}

// AddMaterial inserts a material under an already selected topic.
func (s *Service) AddMaterial(ctx context.Context, in NewMaterial) (Material, error) {
	if in.TopicID == 0 {
		return Material{}, fmt.Errorf("%w: topic", ErrMissingContext)
	}
	in.FileName = strings.TrimSpace(in.FileName)
	if in.FileName == "" {
		return Material{}, fmt.Errorf("%w: file name is empty", ErrValidation)
	}
	if strings.TrimSpace(in.FileRef) == "" {
		return Material{}, fmt.Errorf("%w: file reference is empty", ErrValidation)
	}
	if in.UploadedAt.IsZero() {
		in.UploadedAt = s.now().UTC()
	}
	id, err := s.store.InsertMaterial(ctx, in)
	if err != nil {
		return Material{}, err
	}
	s.logger.Info("material added",
		slog.Int64("material_id", id),
		slog.Int64("topic_id", in.TopicID),
		slog.Int64("uploaded_by", in.UploadedBy),
	)
	return Material{
		ID:         id,
		TopicID:    in.TopicID,
		FileName:   in.FileName,
		FileRef:    in.FileRef,
		UploadedBy: in.UploadedBy,
		UploadedAt: in.UploadedAt,
	}, nil
}

// DeleteMaterial removes a material of the selected topic and the topic too
// when nothing else is left in it.
func (s *Service) DeleteMaterial(ctx context.Context, topicID, materialID int64) (DeleteResult, error) {
	if topicID == 0 || materialID == 0 {
		return DeleteResult{}, fmt.Errorf("%w: topic or material", ErrMissingContext)
	}
	res, err := s.store.DeleteMaterialCascade(ctx, topicID, materialID)
	if err != nil {
		return DeleteResult{}, err
	}
	s.logger.Info("material deleted",
		slog.Int64("material_id", materialID),
		slog.Int64("topic_id", topicID),
		slog.Bool("topic_deleted", res.TopicDeleted),
	)
	return res, nil
}

// ReplaceMaterial overwrites the file name and reference of a material in place.
func (s *Service) ReplaceMaterial(ctx context.Context, materialID int64, fileName, fileRef string) (Material, error) {
	if materialID == 0 {
		return Material{}, fmt.Errorf("%w: material", ErrMissingContext)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || strings.TrimSpace(fileRef) == "" {
		return Material{}, fmt.Errorf("%w: replacement file is incomplete", ErrValidation)
	}
	m, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return Material{}, err
	}
	if err := s.store.UpdateMaterial(ctx, materialID, fileName, fileRef); err != nil {
		return Material{}, err
	}
	s.logger.Info("material replaced", slog.Int64("material_id", materialID), slog.String("file_name", fileName))
	m.FileName = fileName
	m.FileRef = fileRef
	return m, nil
}

// RecordDownload counts one delivery of a material.
func (s *Service) RecordDownload(ctx context.Context, materialID int64) error {
	return s.store.IncrementDownloads(ctx, materialID)
}

// Search matches query case-insensitively against topic, subject and file names.
func (s *Service) Search(ctx context.Context, query string) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", ErrValidation)
	}
	return s.store.SearchMaterials(ctx, query)
}

// TopDownloads returns the most downloaded materials. Non-positive limits
// fall back to DefaultTopLimit.
func (s *Service) TopDownloads(ctx context.Context, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		limit = MaxTopLimit
	}
	return s.store.TopDownloads(ctx, limit)
}
