package domain

import (
	"strings"

	"github.com/google/uuid"
)

type ownerKind uint8

const (
	ownerNone ownerKind = iota
	ownerUser
	ownerSession
)

// Owner identifies whose cart a line belongs to: an account or an anonymous session,
// never both. The zero value is an anonymous caller without a session.
type Owner struct {
	kind    ownerKind
	userID  uuid.UUID
	session string
}

// UserOwner returns the owner for an authenticated account.
func UserOwner(id uuid.UUID) Owner {
	return Owner{kind: ownerUser, userID: id}
}

// SessionOwner returns the owner for an anonymous session token.
func SessionOwner(token string) Owner {
	token = strings.TrimSpace(token)
	if token == "" {
		return Owner{}
	}
	return Owner{kind: ownerSession, session: token}
}

// IsZero reports whether no identity was supplied.
func (o Owner) IsZero() bool { return o.kind == ownerNone }

// IsUser reports whether the owner is an account.
func (o Owner) IsUser() bool { return o.kind == ownerUser }

// IsSession reports whether the owner is an anonymous session.
func (o Owner) IsSession() bool { return o.kind == ownerSession }

// UserID returns the account id and whether the owner is an account.
func (o Owner) UserID() (uuid.UUID, bool) {
	return o.userID, o.kind == ownerUser
}

// SessionToken returns the session token and whether the owner is a session.
func (o Owner) SessionToken() (string, bool) {
	return o.session, o.kind == ownerSession
}

// Key renders the owner as `user:<id>` or `session:<token>`.
func (o Owner) Key() string {
	switch o.kind {
	case ownerUser:
		return "user:" + o.userID.String()
	case ownerSession:
		return "session:" + o.session
	default:
		return ""
	}
}

func (o Owner) String() string { return o.Key() }
