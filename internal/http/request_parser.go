package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"centsible/internal/core"
)

const (
	// HeaderUserID carries the authenticated user, set by a trusted upstream.
	HeaderUserID = "X-User-ID"

	maxBodyBytes = 64 << 10
)

var (
	errMalformedBody = errors.New("malformed request body")
	errMissingUser   = errors.New("missing or invalid " + HeaderUserID + " header")
)

type registerUserRequest struct {
	Username string `json:"username"`
}

type recordTransactionRequest struct {
	Type        string     `json:"type"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Date        core.Date  `json:"date"`
	Description string     `json:"description"`
}

type createGoalRequest struct {
	Name         string     `json:"name"`
	TargetAmount core.Money `json:"targetAmount"`
}

type contributeRequest struct {
	Amount core.Money `json:"amount"`
}

// decodeJSON reads exactly one JSON object into dst. Amount and date
// errors raised while decoding keep their domain sentinel; everything else
// is reported as errMalformedBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if core.IsValidation(err) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", errMalformedBody)
	}
	return nil
}

// userIDFromRequest parses the X-User-ID header as a positive integer.
func userIDFromRequest(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return 0, errMissingUser
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errMissingUser
	}
	return id, nil
}

// pathID extracts a positive integer route variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errMalformedBody, name)
	}
	return id, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
