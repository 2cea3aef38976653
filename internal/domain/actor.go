package domain

import "github.com/google/uuid"

// Actor is whoever performs an operation: an authenticated user, or the system.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// System is the actor for gateway-driven and internal transitions.
var System = Actor{Role: SystemActor}

func UserActor(id uuid.UUID, role string) Actor {
	return Actor{UserID: id, Role: role}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) IsSystem() bool { return a.Role == SystemActor }

// Label is the value recorded in status history.
func (a Actor) Label() string {
	if a.IsSystem() || a.UserID == uuid.Nil {
		return SystemActor
	}
	return a.UserID.String()
}
