package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRoleKey  contextKey = "user_role"
	SessionIDKey contextKey = "session_id"
)

// SessionHeader carries the anonymous cart token for guests.
const SessionHeader = "X-Session-ID"

const maxSessionIDLength = 128

var (
	errMissingHeader = errors.New("missing authorization header")
	errHeaderFormat  = errors.New("invalid authorization header format")
	errTokenExpired  = errors.New("token expired")
	errInvalidToken  = errors.New("invalid token")
	errInvalidClaims = errors.New("invalid token claims")
)

// authenticate validates the bearer token on r and returns its user id and role.
func authenticate(r *http.Request, jwtSecret string) (userID, role string, err error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "", errMissingHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "", errHeaderFormat
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", errTokenExpired
		}
		return "", "", errInvalidToken
	}
	if !token.Valid {
		return "", "", errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errInvalidClaims
	}
	userID, ok = claims["user_id"].(string)
	if !ok {
		return "", "", errInvalidClaims
	}
	if _, err := uuid.Parse(userID); err != nil {
		return "", "", errInvalidClaims
	}
	role, ok = claims["role"].(string)
	if !ok {
		return "", "", errInvalidClaims
	}
	return userID, role, nil
}

func withUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRoleKey, role)
}

// AuthMiddleware validates JWT tokens and extracts user claims
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, role, err := authenticate(r, jwtSecret)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", userID),
				zap.String("role", role),
			)
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID, role)))
		})
	}
}

// OptionalAuth authenticates the request when it carries a token and lets anonymous
// requests through. A token that is present but invalid is still rejected.
func OptionalAuth(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, role, err := authenticate(r, jwtSecret)
			switch {
			case errors.Is(err, errMissingHeader):
				next.ServeHTTP(w, r)
			case err != nil:
				logger.Debug("Optional authentication failed", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
			default:
				next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID, role)))
			}
		})
	}
}

// SessionMiddleware stores the guest session token from the X-Session-ID header.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := strings.TrimSpace(r.Header.Get(SessionHeader))
		if len(session) > maxSessionIDLength {
			RespondWithError(w, http.StatusBadRequest, "session id is too long")
			return
		}
		if session != "" {
			r = r.WithContext(context.WithValue(r.Context(), SessionIDKey, session))
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUserRole extracts user role from request context
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// GetSessionID extracts the guest session token from request context
func GetSessionID(ctx context.Context) (string, bool) {
	session, ok := ctx.Value(SessionIDKey).(string)
	return session, ok
}

// OwnerFromContext resolves the cart owner: the signed-in user, else the guest session.
func OwnerFromContext(ctx context.Context) domain.Owner {
	if raw, ok := GetUserID(ctx); ok {
		if id, err := uuid.Parse(raw); err == nil {
			return domain.UserOwner(id)
		}
	}
	if session, ok := GetSessionID(ctx); ok {
		return domain.SessionOwner(session)
	}
	return domain.Owner{}
}

// ActorFromContext returns the signed-in user as an actor. ok is false for anonymous requests.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	raw, ok := GetUserID(ctx)
	if !ok {
		return domain.Actor{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return domain.Actor{}, false
	}
	role, _ := GetUserRole(ctx)
	return domain.UserActor(id, role), true
}
