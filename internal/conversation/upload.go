package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

func (e *Engine) startUpload(ctx context.Context, _ *Session, in input) (State, error) {
	if ok, err := e.requireTeacher(ctx, in, textTeachersOnlyUpload); !ok {
		return StateIdle, err
	}
	subjects, err := e.catalog.Subjects(ctx)
	if err != nil {
		return StateIdle, err
	}
	choices := append(subjectNames(subjects), LabelNewSubject)
	return StateUploadSubject, e.say(ctx, in.Target, textChooseOrCreate, choiceKeyboard(choices))
}

// uploadSubject takes an existing subject name or the "new subject" choice.
// An unknown name re-prompts instead of ending the flow.
func (e *Engine) uploadSubject(ctx context.Context, sess *Session, in input) (State, error) {
	name, err := requireText(in)
	if err != nil {
		return StateIdle, err
	}
	if name == LabelNewSubject {
		return StateUploadNewSubject, e.say(ctx, in.Target, textEnterNewSubject, removeKeyboard())
	}
	subject, err := e.catalog.SubjectByName(ctx, name)
	if errors.Is(err, catalog.ErrNotFound) {
		return StateIdle, reply(catalog.ErrValidation, textSubjectRetry)
	}
	if err != nil {
		return StateIdle, err
	}
	sess.SubjectID = subject.ID
	return StateUploadTopic, e.say(ctx, in.Target, textEnterTopic, removeKeyboard())
}

func (e *Engine) uploadNewSubject(ctx context.Context, sess *Session, in input) (State, error) {
	subject, err := e.catalog.CreateSubject(ctx, in.Text)
	switch {
	case errors.Is(err, catalog.ErrValidation):
		return StateIdle, reply(err, textSubjectEmpty)
	case errors.Is(err, catalog.ErrDuplicate):
		return StateIdle, reply(err, textSubjectExists)
	case err != nil:
		return StateIdle, err
	}
	sess.SubjectID = subject.ID
	return StateUploadTopic, e.say(ctx, in.Target, fmt.Sprintf(textSubjectCreated, subject.Name), nil)
}

func (e *Engine) uploadTopic(ctx context.Context, sess *Session, in input) (State, error) {
	topic, created, err := e.catalog.FindOrCreateTopic(ctx, sess.SubjectID, in.Text)
	if errors.Is(err, catalog.ErrValidation) {
		return StateIdle, reply(err, textTopicEmpty)
	}
	if err != nil {
		return StateIdle, err
	}
	sess.TopicID = topic.ID
	notice := fmt.Sprintf(textTopicExists, topic.Name)
	if created {
		notice = fmt.Sprintf(textTopicCreated, topic.Name)
	}
	if err := e.say(ctx, in.Target, notice, nil); err != nil {
		return StateIdle, err
	}
	return StateUploadFile, e.say(ctx, in.Target, textSendFile, nil)
}

// uploadFile stores documents right away. Photos and videos carry no name,
// so they wait in the session until the user types one.
func (e *Engine) uploadFile(ctx context.Context, sess *Session, in input) (State, error) {
	if in.File == nil {
		return StateIdle, reply(catalog.ErrValidation, textFileRequired)
	}
	if sess.TopicID == 0 {
		return StateIdle, fmt.Errorf("%w: topic", catalog.ErrMissingContext)
	}
	f := *in.File
	if catalog.NeedsName(f.Kind) {
		sess.PendingFile = &f
		return StateUploadName, e.say(ctx, in.Target, textEnterFileName, nil)
	}
	if err := catalog.UploadPolicy.Check(f); err != nil {
		return StateIdle, reply(err, textBadFormat)
	}
	return e.saveMaterial(ctx, sess, in, catalog.UploadName(f), f.Ref)
}

func (e *Engine) uploadName(ctx context.Context, sess *Session, in input) (State, error) {
	if sess.PendingFile == nil {
		return StateIdle, fmt.Errorf("%w: pending file", catalog.ErrMissingContext)
	}
	name, err := catalog.MediaName(sess.PendingFile.Kind, in.Text)
	if err != nil {
		return StateIdle, reply(err, textFileNameEmpty)
	}
	return e.saveMaterial(ctx, sess, in, name, sess.PendingFile.Ref)
}

func (e *Engine) saveMaterial(ctx context.Context, sess *Session, in input, name, ref string) (State, error) {
	m, err := e.catalog.AddMaterial(ctx, catalog.NewMaterial{
		TopicID:    sess.TopicID,
		FileName:   name,
		FileRef:    ref,
		UploadedBy: in.UserID,
	})
	if err != nil {
		return StateIdle, err
	}
	return StateIdle, e.say(ctx, in.Target, fmt.Sprintf(textMaterialSaved, m.FileName), nil)
}
