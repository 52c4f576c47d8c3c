package http

import (
	"errors"
	"net/http"

	"centsible/internal/core"
	"centsible/internal/services"
)

// Error codes returned in the "code" field.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidAmount        = "invalid_amount"
	CodeAmountOutOfRange     = "amount_out_of_range"
	CodeInvalidType          = "invalid_type"
	CodeEmptyCategory        = "empty_category"
	CodeInvalidDate          = "invalid_date"
	CodeEmptyName            = "empty_name"
	CodeInvalidUsername      = "invalid_username"
	CodeFieldTooLong         = "field_too_long"
	CodeUnauthorized         = "unauthorized"
	CodeUserNotFound         = "user_not_found"
	CodeGoalNotFound         = "goal_not_found"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeUsernameTaken        = "username_taken"
	CodeGoalCompleted        = "goal_already_completed"
	CodeExceedsTarget        = "contribution_exceeds_target"
	CodeRateLimited          = "rate_limited"
	CodeBalanceUpdatePending = "balance_update_pending"
	CodeInternal             = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{core.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidAmount},
	{core.ErrAmountOverflow, http.StatusBadRequest, CodeAmountOutOfRange},
	{core.ErrInvalidType, http.StatusBadRequest, CodeInvalidType},
	{core.ErrEmptyCategory, http.StatusBadRequest, CodeEmptyCategory},
	{core.ErrInvalidDate, http.StatusBadRequest, CodeInvalidDate},
	{core.ErrEmptyName, http.StatusBadRequest, CodeEmptyName},
	{core.ErrInvalidUsername, http.StatusBadRequest, CodeInvalidUsername},
	{core.ErrFieldTooLong, http.StatusBadRequest, CodeFieldTooLong},
	{errMalformedBody, http.StatusBadRequest, CodeInvalidRequest},
	{core.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound},
	{core.ErrGoalNotFound, http.StatusNotFound, CodeGoalNotFound},
	{core.ErrUsernameTaken, http.StatusConflict, CodeUsernameTaken},
	{core.ErrGoalAlreadyCompleted, http.StatusConflict, CodeGoalCompleted},
	{core.ErrContributionExceedsTarget, http.StatusConflict, CodeExceedsTarget},
}

// errorResponse maps a service error to its HTTP response. Anything
// unrecognized, storage failures included, becomes a bare 500.
func errorResponse(err error) *JSONResponseBuilder {
	var balanceErr *services.BalanceWriteError
	if errors.As(err, &balanceErr) {
		return NewJSONResponse().
			Status(http.StatusInternalServerError).
			Body(ErrorBody{
				Message:       "transaction recorded, balance update pending",
				Code:          CodeBalanceUpdatePending,
				TransactionID: balanceErr.Transaction.ID,
			})
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := ErrorBody{Message: err.Error(), Code: m.code}
		var contribErr *services.ContributionError
		if errors.As(err, &contribErr) {
			body.MaxAllowed = contribErr.MaxAllowed.String()
		}
		return NewJSONResponse().Status(m.status).Body(body)
	}
	return InternalServerError()
}
