package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

func (e *Engine) showStats(ctx context.Context, _ *Session, in input) (State, error) {
	if ok, err := e.requireTeacher(ctx, in, textTeachersOnlyStats); !ok {
		return StateIdle, err
	}
	hits, err := e.catalog.TopDownloads(ctx, catalog.DefaultTopLimit)
	if err != nil {
		return StateIdle, err
	}
	if len(hits) == 0 {
		return StateIdle, e.say(ctx, in.Target, textNoDownloads, nil)
	}
	return StateIdle, e.say(ctx, in.Target, fmt.Sprintf(textTopDownloads, FormatTop(hits)), nil)
}

// FormatTop renders a numbered download ranking, one material per line.
func FormatTop(hits []catalog.SearchHit) string {
	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (%s): %d", i+1, hit.Material.FileName, hit.Label(), hit.Material.Downloads)
	}
	return b.String()
}
