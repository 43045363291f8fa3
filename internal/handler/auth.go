package handler

import (
	"net/http"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
)

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err, "Server error")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Admin:     newAdminResponse(res.Admin),
	})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	a, err := h.auth.Me(r.Context(), claims.AdminID)
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, newAdminResponse(a))
}

// ChangePassword handles POST /api/auth/change-password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err, "Server error")
		return
	}

	claims := mustClaims(r)
	if err := h.auth.ChangePassword(r.Context(), claims.AdminID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
}

// Setup handles POST /api/auth/setup.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err, "Server error")
		return
	}

	a, err := h.auth.Setup(r.Context(), auth.SetupRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		SetupKey: req.SetupKey,
	})
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, setupResponse{Message: "Admin created successfully", AdminID: a.ID})
}

// mustClaims returns the claims RequireAdmin stored on the request.
func mustClaims(r *http.Request) *auth.Claims {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		panic("handler: admin route mounted without RequireAdmin")
	}
	return claims
}
