package core

import (
	"context"
	"fmt"
	"time"
)

// Room policy names accepted by PolicyFromName.
const (
	PolicyOpen   = "open"
	PolicyStrict = "strict"
)

const defaultPolicyTimeout = 2 * time.Second

// RoomPolicy decides whether an identity may join a room.
type RoomPolicy interface {
	CanJoin(ctx context.Context, userID, room string) (bool, error)
}

// WorkspaceMembership answers workspace membership questions.
type WorkspaceMembership interface {
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// OpenPolicy lets any authenticated connection join any room.
type OpenPolicy struct{}

func (OpenPolicy) CanJoin(context.Context, string, string) (bool, error) {
	return true, nil
}

// StrictPolicy requires workspace membership for workspace rooms and restricts
// personal rooms to their owner. Document and team rooms stay open.
type StrictPolicy struct {
	Workspaces WorkspaceMembership
	Timeout    time.Duration
}

func (p StrictPolicy) CanJoin(ctx context.Context, userID, room string) (bool, error) {
	kind, id := ParseRoom(room)
	switch kind {
	case RoomKindUser:
		return id == userID, nil
	case RoomKindWorkspace:
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultPolicyTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err := p.Workspaces.IsWorkspaceMember(ctx, id, userID)
		if err != nil {
			return false, fmt.Errorf("check workspace membership: %w", err)
		}
		return ok, nil
	default:
		return true, nil
	}
}

// PolicyFromName resolves a configured policy name.
func PolicyFromName(name string, workspaces WorkspaceMembership) (RoomPolicy, error) {
	switch name {
	case "", PolicyOpen:
		return OpenPolicy{}, nil
	case PolicyStrict:
		if workspaces == nil {
			return nil, fmt.Errorf("strict room policy requires a workspace store")
		}
		return StrictPolicy{Workspaces: workspaces}, nil
	default:
		return nil, fmt.Errorf("unknown room policy %q", name)
	}
}
