package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

func (e *Engine) startSearch(ctx context.Context, _ *Session, in input) (State, error) {
	return StateSearchQuery, e.say(ctx, in.Target, textEnterQuery, removeKeyboard())
}

// searchQuery delivers every hit with its subject and topic. Search results
// are not counted as downloads.
func (e *Engine) searchQuery(ctx context.Context, _ *Session, in input) (State, error) {
	hits, err := e.catalog.Search(ctx, in.Text)
	if errors.Is(err, catalog.ErrValidation) {
		return StateIdle, reply(err, textQueryEmpty)
	}
	if err != nil {
		return StateIdle, err
	}
	if len(hits) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNothingFound, nil)
	}
	for _, hit := range hits {
		if err := e.deliver(ctx, in.Target, hit.Material, hitCaption(hit)); err != nil {
			return StateIdle, err
		}
	}
	return StateIdle, nil
}

func hitCaption(hit catalog.SearchHit) string {
	return fmt.Sprintf("📁 %s\n📚 Subject: %s\n📝 Topic: %s", hit.Material.FileName, hit.SubjectName, hit.TopicName)
}
