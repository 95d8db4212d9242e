package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

func (e *Engine) startBrowse(ctx context.Context, _ *Session, in input) (State, error) {
	subjects, err := e.catalog.Subjects(ctx)
	if err != nil {
		return StateIdle, err
	}
	if len(subjects) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoSubjects, nil)
	}
	return StateBrowseSubject, e.say(ctx, in.Target, textChooseSubject, choiceKeyboard(subjectNames(subjects)))
}

func (e *Engine) browseSubject(ctx context.Context, sess *Session, in input) (State, error) {
	subject, err := e.selectSubject(ctx, sess, in)
	if err != nil {
		return StateIdle, err
	}
	topics, err := e.catalog.Topics(ctx, subject.ID)
	if err != nil {
		return StateIdle, err
	}
	if len(topics) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoTopics, nil)
	}
	return StateBrowseTopic, e.say(ctx, in.Target, textChooseTopic, choiceKeyboard(topicNames(topics)))
}

// browseTopic delivers every material of the chosen topic and counts each
// successful delivery. A file that cannot be sent is skipped and reported.
func (e *Engine) browseTopic(ctx context.Context, sess *Session, in input) (State, error) {
	name, err := requireText(in)
	if err != nil {
		return StateIdle, err
	}
	topic, err := e.catalog.TopicByName(ctx, sess.SubjectID, name)
	if err != nil {
		return StateIdle, notFoundReply(err, textTopicNotFound)
	}
	materials, err := e.catalog.Materials(ctx, topic.ID)
	if err != nil {
		return StateIdle, err
	}
	if len(materials) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoMaterials, nil)
	}
	failed := 0
	for _, m := range materials {
		if err := e.deliver(ctx, in.Target, m, ""); err != nil {
			if ctx.Err() != nil {
				return StateIdle, err
			}
			e.logger.Warn("material delivery failed",
				slog.Int64("user_id", in.UserID),
				slog.Int64("material_id", m.ID),
				slog.String("file_name", m.FileName),
				slog.Any("error", err),
			)
			failed++
			continue
		}
		if err := e.catalog.RecordDownload(ctx, m.ID); err != nil {
			return StateIdle, fmt.Errorf("record download: %w", err)
		}
	}
	if failed > 0 {
		return StateIdle, e.say(ctx, in.Target, fmt.Sprintf(textUndelivered, failed, len(materials)), nil)
	}
	return StateIdle, nil
}

// selectSubject resolves the typed subject name exactly and remembers it.
func (e *Engine) selectSubject(ctx context.Context, sess *Session, in input) (catalog.Subject, error) {
	name, err := requireText(in)
	if err != nil {
		return catalog.Subject{}, err
	}
	subject, err := e.catalog.SubjectByName(ctx, name)
	if err != nil {
		return catalog.Subject{}, notFoundReply(err, textSubjectNotFound)
	}
	sess.SubjectID = subject.ID
	return subject, nil
}

func notFoundReply(err error, text string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return reply(err, text)
	}
	return err
}
