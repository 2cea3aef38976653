package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID, role string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Feature: storefront-checkout, Property 43: Protected endpoints reject missing tokens
func TestProperty_ProtectedEndpointsRejectMissingTokens(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without authorization header are rejected", prop.ForAll(
		func(pathSuffix string, method string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			path := "/" + pathSuffix
			if path == "/" {
				path = "/orders"
			}

			req := httptest.NewRequest(method, path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-checkout, Property 44: Expired tokens are rejected
func TestProperty_ExpiredTokensAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("expired tokens are rejected with 401", prop.ForAll(
		func(role string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/orders", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.NewString(), role, -time.Hour))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.OneConstOf(domain.RoleUser, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-checkout, Property 45: Valid tokens carry the caller into the request
func TestProperty_ValidTokensAllowProcessing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid tokens expose user id, role and owner", prop.ForAll(
		func(role string) bool {
			userID := uuid.New()
			handlerCalled := false

			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				ctxUserID, ok1 := GetUserID(r.Context())
				ctxRole, ok2 := GetUserRole(r.Context())
				actor, ok3 := ActorFromContext(r.Context())
				owner := OwnerFromContext(r.Context())

				if !ok1 || !ok2 || !ok3 || ctxUserID != userID.String() || ctxRole != role {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				if actor.UserID != userID || owner != domain.UserOwner(userID) {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/orders", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, userID.String(), role, time.Hour))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !handlerCalled || w.Code != http.StatusOK {
				t.Logf("FAIL: role %s got status %d", role, w.Code)
				return false
			}
			return true
		},
		gen.OneConstOf(domain.RoleUser, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_InvalidTokenFormatRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("invalid token formats are rejected", prop.ForAll(
		func(invalidToken string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/orders", nil)
			req.Header.Set("Authorization", "Bearer "+invalidToken)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_MissingBearerPrefixRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("tokens without Bearer prefix are rejected", prop.ForAll(
		func(token string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/orders", nil)
			req.Header.Set("Authorization", token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAuthMiddleware_RejectsNonUUIDSubject(t *testing.T) {
	handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "not-a-uuid", domain.RoleUser, time.Hour))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth_AllowsAnonymousGuests(t *testing.T) {
	var owner domain.Owner
	var authenticated bool
	handler := SessionMiddleware(OptionalAuth(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerFromContext(r.Context())
		_, authenticated = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/cart", nil)
	req.Header.Set(SessionHeader, "guest-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, authenticated)
	require.Equal(t, domain.SessionOwner("guest-123"), owner)
}

func TestOptionalAuth_UserWinsOverSession(t *testing.T) {
	userID := uuid.New()
	var owner domain.Owner
	handler := SessionMiddleware(OptionalAuth(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/cart", nil)
	req.Header.Set(SessionHeader, "guest-123")
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID.String(), domain.RoleUser, time.Hour))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, domain.UserOwner(userID), owner)
}

func TestOptionalAuth_RejectsBadTokens(t *testing.T) {
	handler := OptionalAuth(testSecret, zap.NewNop())(okHandler())

	req := httptest.NewRequest("GET", "/cart", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionMiddleware_NoHeaderMeansNoOwner(t *testing.T) {
	var owner domain.Owner
	handler := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/cart", nil)
	req.Header.Set(SessionHeader, "   ")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, owner.IsZero())
}

func TestSessionMiddleware_RejectsOversizedSession(t *testing.T) {
	handler := SessionMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/cart", nil)
	req.Header.Set(SessionHeader, strings.Repeat("s", maxSessionIDLength+1))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin passes", domain.RoleAdmin, http.StatusOK},
		{"customer is forbidden", domain.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthMiddleware(testSecret, zap.NewNop())(RequireAdmin(zap.NewNop())(okHandler()))

			req := httptest.NewRequest("POST", "/admin/orders/x/refund", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.NewString(), tc.role, time.Hour))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tc.want, w.Code)
		})
	}
}
