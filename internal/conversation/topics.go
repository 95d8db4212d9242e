package conversation

import (
	"context"
	"fmt"
	"strings"
)

func (e *Engine) startTopics(ctx context.Context, _ *Session, in input) (State, error) {
	if ok, err := e.requireTeacher(ctx, in, textTeachersOnlyTopics); !ok {
		return StateIdle, err
	}
	subjects, err := e.catalog.Subjects(ctx)
	if err != nil {
		return StateIdle, err
	}
	if len(subjects) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoSubjects, nil)
	}
	return StateTopicsSubject, e.say(ctx, in.Target, textChooseSubject, choiceKeyboard(subjectNames(subjects)))
}

func (e *Engine) topicsSubject(ctx context.Context, sess *Session, in input) (State, error) {
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
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, "- "+t.Name)
	}
	return StateIdle, e.say(ctx, in.Target, fmt.Sprintf(textTopicsOf, subject.Name, strings.Join(lines, "\n")), nil)
}
