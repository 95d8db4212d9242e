package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNotOwner      = errors.New("only the owner may grant the teacher role")
	ErrInvalidTarget = errors.New("invalid user id")
)

// RoleStore is the part of the catalog store holding teacher membership.
type RoleStore interface {
	IsTeacher(ctx context.Context, userID int64) (bool, error)
	AddTeacher(ctx context.Context, userID int64) error
}

// Policy answers teacher/student questions and guards role grants.
type Policy struct {
	store   RoleStore
	ownerID int64
	logger  *slog.Logger
}

// NewPolicy creates a policy. An ownerID of 0 disables grants entirely.
func NewPolicy(log *slog.Logger, store RoleStore, ownerID int64) *Policy {
	if log == nil {
		log = slog.Default()
	}
	return &Policy{
		store:   store,
		ownerID: ownerID,
		logger:  log.With(slog.String("service", "access")),
	}
}

// IsPrivileged reports whether userID holds the teacher role.
func (p *Policy) IsPrivileged(ctx context.Context, userID int64) (bool, error) {
	ok, err := p.store.IsTeacher(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return ok, nil
}

func (p *Policy) IsOwner(userID int64) bool {
	return p.ownerID != 0 && userID == p.ownerID
}

// Grant makes targetID a teacher. Granting an existing teacher is a no-op.
func (p *Policy) Grant(ctx context.Context, actorID, targetID int64) error {
	if !p.IsOwner(actorID) {
		p.logger.Warn("grant refused", slog.Int64("actor_id", actorID), slog.Int64("target_id", targetID))
		return ErrNotOwner
	}
	return p.GrantUnchecked(ctx, targetID)
}

// GrantUnchecked grants the role without an actor check. It backs the
// operator CLI, which already runs with database credentials.
func (p *Policy) GrantUnchecked(ctx context.Context, targetID int64) error {
	if targetID <= 0 {
		return ErrInvalidTarget
	}
	if err := p.store.AddTeacher(ctx, targetID); err != nil {
		return fmt.Errorf("grant teacher: %w", err)
	}
	p.logger.Info("teacher granted", slog.Int64("user_id", targetID))
	return nil
}
