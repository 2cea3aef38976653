package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindInsufficientStock:   http.StatusUnprocessableEntity,
	domain.KindForbidden:           http.StatusForbidden,
	domain.KindNotFound:            http.StatusNotFound,
	domain.KindInvalidPaymentState: http.StatusBadRequest,
	domain.KindPaymentNotCompleted: http.StatusBadRequest,
	domain.KindAmountMismatch:      http.StatusBadRequest,
	domain.KindEmptyCart:           http.StatusBadRequest,
	domain.KindCannotCancel:        http.StatusBadRequest,
	domain.KindValidation:          http.StatusBadRequest,
	domain.KindInvalidSignature:    http.StatusBadRequest,
	domain.KindGatewayError:        http.StatusBadGateway,
	domain.KindInternal:            http.StatusInternalServerError,
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind domain.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeServiceError renders a service failure. Errors without a kind, and internal
// errors, are logged and reported without their cause.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)

	if kind == domain.KindInternal {
		logger.Error(msg, zap.Error(err))
		middleware.RespondWithErrorCode(w, status, string(kind), "internal server error", nil)
		return
	}

	var de *domain.Error
	message, details := err.Error(), map[string]interface{}(nil)
	if errors.As(err, &de) {
		message, details = de.Message, de.Details
	}
	if status >= http.StatusInternalServerError || kind == domain.KindGatewayError {
		logger.Warn(msg, zap.String("kind", string(kind)), zap.Error(err))
	} else {
		logger.Debug(msg, zap.String("kind", string(kind)), zap.Error(err))
	}
	middleware.RespondWithErrorCode(w, status, string(kind), message, details)
}

// decodeRequest decodes and validates a JSON body, writing the failure response itself.
func decodeRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathUUID parses a uuid route parameter, writing a 400 when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// requireActor returns the signed-in caller, writing a 401 for anonymous requests.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return domain.Actor{}, false
	}
	return actor, true
}

// requireOwner returns the cart owner, writing a 400 when neither a token nor a session is present.
func requireOwner(w http.ResponseWriter, r *http.Request) (domain.Owner, bool) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner.IsZero() {
		middleware.RespondWithError(w, http.StatusBadRequest, "sign in or send an "+middleware.SessionHeader+" header")
		return domain.Owner{}, false
	}
	return owner, true
}

// sessionOwner returns the guest session named by the X-Session-ID header, or the zero Owner.
func sessionOwner(r *http.Request) domain.Owner {
	if session, ok := middleware.GetSessionID(r.Context()); ok {
		return domain.SessionOwner(session)
	}
	return domain.Owner{}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

// optionalUUID parses an optional uuid string; empty means nil.
func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

