package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/parcelaid/backend/internal/service"
	"github.com/parcelaid/backend/pkg/auth"
)

// AdminConfig holds the session settings used by AdminHandler.
type AdminConfig struct {
	SessionSecret []byte
	SecureCookies bool
}

// AdminHandler handles admin login/logout and the aggregated data read.
type AdminHandler struct {
	svc service.AdminService
	cfg AdminConfig
	now func() time.Time
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc service.AdminService, cfg AdminConfig) *AdminHandler {
	return &AdminHandler{svc: svc, cfg: cfg, now: time.Now}
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login handles POST /admin/login. 成功時はセッション Cookie を発行し、
// 失敗時はどの項目が違ったかを伏せて 401 を返す
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !h.svc.Login(req.ID, req.Password) {
		slog.WarnContext(r.Context(), "admin login failed", "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	http.SetCookie(w, auth.SessionCookie(req.ID, h.cfg.SessionSecret, h.now(), h.cfg.SecureCookies))
	slog.InfoContext(r.Context(), "admin login")
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: "Login successful"})
}

// Logout handles POST /admin/logout.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearSessionCookie(h.cfg.SecureCookies))
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: "Logged out"})
}

// Data handles GET /admin/data. Whether a session is required is decided by
// how the route is wrapped in cmd/server (ADMIN_DATA_REQUIRE_SESSION).
func (h *AdminHandler) Data(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Data(r.Context()))
}
