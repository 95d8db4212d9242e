package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/studyshelf/catalogbot/internal/access"
)

// grant handles /add_teacher. It leaves any flow in progress untouched.
func (e *Engine) grant(ctx context.Context, in input, args []string) error {
	if !e.policy.IsOwner(in.UserID) {
		e.logger.Warn("add_teacher refused", slog.Int64("user_id", in.UserID))
		return e.say(ctx, in.Target, textAccessDenied, nil)
	}
	if len(args) != 1 {
		return e.say(ctx, in.Target, textGrantUsage, nil)
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return e.say(ctx, in.Target, textGrantInvalid, nil)
	}
	err = e.policy.Grant(ctx, in.UserID, target)
	switch {
	case errors.Is(err, access.ErrInvalidTarget):
		return e.say(ctx, in.Target, textGrantInvalid, nil)
	case err != nil:
		e.logger.Error("add_teacher failed", slog.Int64("target_id", target), slog.Any("error", err))
		return e.say(ctx, in.Target, textGenericFailed, nil)
	}
	return e.say(ctx, in.Target, fmt.Sprintf(textGrantDone, target), nil)
}
