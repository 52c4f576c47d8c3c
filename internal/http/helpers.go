package http

import (
	"context"
	"net/http"

	applog "centsible/internal/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// withUser rejects requests without a valid X-User-ID and stores the id
// in the request context.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			UnauthorizedError(err.Error()).Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		logger := applog.FromContext(ctx).With(applog.FieldUserID, userID)
		next(w, r.WithContext(applog.NewContext(ctx, logger)))
	}
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// fail writes the mapped error response and logs server-side failures
// with their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := errorResponse(err)
	logger := applog.FromContext(r.Context())
	if resp.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	resp.Write(w)
}
