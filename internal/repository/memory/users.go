package memory

import (
	"context"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type users struct{ s *Store }

func (r *users) Create(ctx context.Context, u *domain.User) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.s.data.users {
		if existing.Email == u.Email {
			return repository.ErrUserAlreadyExists
		}
	}
	r.s.data.users[u.ID] = *u
	return nil
}

func (r *users) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *users) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

type refreshTokens struct{ s *Store }

func (r *refreshTokens) Create(ctx context.Context, t *domain.RefreshToken) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	r.s.data.tokens[t.Token] = *t
	return nil
}

func (r *refreshTokens) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	t, ok := r.s.data.tokens[token]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if t.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return &t, nil
}

func (r *refreshTokens) Revoke(ctx context.Context, token string) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	t, ok := r.s.data.tokens[token]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	t.Revoked = true
	r.s.data.tokens[token] = t
	return nil
}

func (r *refreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	for key, t := range r.s.data.tokens {
		if t.UserID == userID {
			t.Revoked = true
			r.s.data.tokens[key] = t
		}
	}
	return nil
}
