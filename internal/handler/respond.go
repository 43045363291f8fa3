package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("invalid JSON body")

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON body into v. An empty body leaves v zero.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(errBadJSON, err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// fail maps err to a status and the JSON error body. Server errors are
// logged; admins additionally get the underlying reason in "details".
// fallback is the message for unexpected errors.
func fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, msg := classify(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, msg)
		return
	}

	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	resp := errorResponse{Error: fallback}
	if _, ok := auth.ClaimsFromContext(r.Context()); ok {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	var (
		validationErr *order.ValidationError
		catalogErr    *order.CatalogError
		transitionErr *order.TransitionError
	)
	switch {
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest, "Invalid JSON body"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &catalogErr):
		return http.StatusUnprocessableEntity, catalogErr.Error()
	case errors.As(err, &transitionErr):
		return http.StatusConflict, transitionErr.Error()
	case errors.Is(err, order.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status"
	case errors.Is(err, customer.ErrInvalidPhone):
		return http.StatusBadRequest, "Invalid phone number"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, customer.ErrNotFound):
		return http.StatusNotFound, "Customer not found"
	case errors.Is(err, auth.ErrAdminNotFound):
		return http.StatusNotFound, "Admin not found"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrWrongPassword):
		return http.StatusUnauthorized, "Current password is incorrect"
	case errors.Is(err, auth.ErrCredentialsRequired):
		return http.StatusBadRequest, "Email and password required"
	case errors.Is(err, auth.ErrPasswordRequired):
		return http.StatusBadRequest, "New password required"
	case errors.Is(err, auth.ErrAdminExists):
		return http.StatusBadRequest, "Admin already exists"
	case errors.Is(err, auth.ErrInvalidSetupKey):
		return http.StatusForbidden, "Invalid setup key"
	case errors.Is(err, auth.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "Too many login attempts"
	default:
		return http.StatusInternalServerError, ""
	}
}
