package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

// fileChoice matches the "<id>: <file name>" buttons of the file keyboard.
var fileChoice = regexp.MustCompile(`^(\d+):\s*(.*)$`)

func (e *Engine) startManage(ctx context.Context, _ *Session, in input) (State, error) {
	if ok, err := e.requireTeacher(ctx, in, textTeachersOnlyManage); !ok {
		return StateIdle, err
	}
	return StateManageAction, e.say(ctx, in.Target, textChooseAction, choiceKeyboard([]string{LabelDelete, LabelReplace}))
}

func (e *Engine) manageAction(ctx context.Context, sess *Session, in input) (State, error) {
	switch in.Text {
	case LabelDelete:
		sess.Action = ActionDelete
	case LabelReplace:
		sess.Action = ActionReplace
	default:
		return StateIdle, reply(catalog.ErrValidation, textChooseActionKbd)
	}
	subjects, err := e.catalog.Subjects(ctx)
	if err != nil {
		return StateIdle, err
	}
	if len(subjects) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoSubjects, nil)
	}
	return StateManageSubject, e.say(ctx, in.Target, textChooseSubject, choiceKeyboard(subjectNames(subjects)))
}

func (e *Engine) manageSubject(ctx context.Context, sess *Session, in input) (State, error) {
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
	return StateManageTopic, e.say(ctx, in.Target, textChooseTopic, choiceKeyboard(topicNames(topics)))
}

func (e *Engine) manageTopic(ctx context.Context, sess *Session, in input) (State, error) {
	name, err := requireText(in)
	if err != nil {
		return StateIdle, err
	}
	return e.openTopicFiles(ctx, sess, in, name)
}

// manageFile classifies the input: a "<id>: <name>" button selects a file of
// the current topic, any other text is looked up as a topic of the current
// subject. Text shaped like a button that matches no file of the topic but
// names a topic (e.g. "2024: Finals") navigates to that topic.
func (e *Engine) manageFile(ctx context.Context, sess *Session, in input) (State, error) {
	text, err := requireText(in)
	if err != nil {
		return StateIdle, err
	}
	id, ok := parseFileChoice(text)
	if !ok {
		return e.openTopicFiles(ctx, sess, in, text)
	}
	if _, err := e.catalog.MaterialInTopic(ctx, sess.TopicID, id); errors.Is(err, catalog.ErrNotFound) {
		if _, err := e.catalog.TopicByName(ctx, sess.SubjectID, text); err == nil {
			return e.openTopicFiles(ctx, sess, in, text)
		}
	}
	return e.selectFile(ctx, sess, in, id)
}

func parseFileChoice(text string) (int64, bool) {
	m := fileChoice.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (e *Engine) openTopicFiles(ctx context.Context, sess *Session, in input, name string) (State, error) {
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
	sess.TopicID = topic.ID
	choices := make([]string, 0, len(materials))
	for _, m := range materials {
		choices = append(choices, fmt.Sprintf("%d: %s", m.ID, m.FileName))
	}
	prompt := textChooseFileDelete
	if sess.Action == ActionReplace {
		prompt = textChooseFileSwap
	}
	return StateManageFile, e.say(ctx, in.Target, prompt, choiceKeyboard(choices))
}

func (e *Engine) selectFile(ctx context.Context, sess *Session, in input, id int64) (State, error) {
	if _, err := e.catalog.MaterialInTopic(ctx, sess.TopicID, id); err != nil {
		return StateIdle, notFoundReply(err, textFileNotInTopic)
	}
	switch sess.Action {
	case ActionReplace:
		sess.TargetMaterialID = id
		return StateReplaceFile, e.say(ctx, in.Target, textSendNewFile, removeKeyboard())
	case ActionDelete:
		res, err := e.catalog.DeleteMaterial(ctx, sess.TopicID, id)
		if err != nil {
			return StateIdle, notFoundReply(err, textFileNotInTopic)
		}
		if err := e.say(ctx, in.Target, textMaterialDeleted, nil); err != nil {
			return StateIdle, err
		}
		if res.TopicDeleted {
			return StateIdle, e.say(ctx, in.Target, textTopicRemoved, nil)
		}
		return StateIdle, nil
	default:
		return StateIdle, fmt.Errorf("%w: action", catalog.ErrMissingContext)
	}
}

// replaceFile swaps the file behind the chosen material. Media get a
// generated name since this flow has no naming step.
func (e *Engine) replaceFile(ctx context.Context, sess *Session, in input) (State, error) {
	if in.File == nil {
		return StateIdle, reply(catalog.ErrValidation, textFileRequired)
	}
	f := *in.File
	if err := catalog.ReplacePolicy.Check(f); err != nil {
		return StateIdle, reply(err, textBadFormat)
	}
	_, err := e.catalog.ReplaceMaterial(ctx, sess.TargetMaterialID, catalog.ReplaceName(f, e.newToken()), f.Ref)
	if errors.Is(err, catalog.ErrNotFound) {
		return StateIdle, reply(err, textReplaceMissing)
	}
	if err != nil {
		return StateIdle, err
	}
	return StateIdle, e.say(ctx, in.Target, textMaterialReplaced, nil)
}
