package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type authContextKey struct{}

var errBadCredentials = errors.New("invalid credentials")

// requireStaff guards staff routes with HTTP basic auth checked against the
// StaffStore's bcrypt hashes. The per-user rate limit is charged only once
// the credentials are verified.
func (h *Handler) requireStaff(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, err := h.authenticate(r)
		if err != nil {
			if errors.Is(err, errBadCredentials) {
				w.Header().Set("WWW-Authenticate", `Basic realm="staff"`)
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid staff credentials")
				return
			}
			log.Printf("staff auth error: %v", err)
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if !h.limiter.AllowStaff(username) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticate(r *http.Request) (string, error) {
	username, password, ok := r.BasicAuth()
	username = strings.TrimSpace(username)
	if !ok || username == "" || password == "" {
		return "", errBadCredentials
	}
	staff, err := h.staff.GetStaff(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errBadCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return "", errBadCredentials
	}
	return staff.Username, nil
}

// optionalStaff names the staff member behind a public request when valid
// credentials are supplied, e.g. a reception desk registering a walk-in.
func (h *Handler) optionalStaff(r *http.Request) string {
	if _, _, ok := r.BasicAuth(); !ok {
		return ""
	}
	username, err := h.authenticate(r)
	if err != nil {
		return ""
	}
	return username
}

func staffUser(ctx context.Context) string {
	username, _ := ctx.Value(authContextKey{}).(string)
	return username
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}
