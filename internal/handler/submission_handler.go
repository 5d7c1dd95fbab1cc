package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parcelaid/backend/internal/service"
)

// SubmissionHandler handles the public form endpoints.
type SubmissionHandler struct {
	svc service.SubmissionService
}

// NewSubmissionHandler creates a SubmissionHandler with the given service.
func NewSubmissionHandler(svc service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

// writeSubmitError はサービスのエラーをレスポンスに変換する。
// 検証エラーはクライアント側の誤りなので debug ログのみ
func writeSubmitError(w http.ResponseWriter, r *http.Request, form string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		slog.DebugContext(r.Context(), "submission rejected", "form", form, "field", verr.Field)
		writeError(w, http.StatusBadRequest, verr.Field+"_required", verr.Error())
		return
	}
	slog.ErrorContext(r.Context(), "submission failed", "form", form, "error", err)
	writeError(w, http.StatusInternalServerError, "submit_failed", "Could not save your submission, please try again")
}

type donateRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	ParcelName  string          `json:"parcelName"`
	ParcelCount json.RawMessage `json:"parcelCount"`
	TotalAmount json.RawMessage `json:"totalAmount"`
}

// Donate handles POST /api/donate.
// name, email and phone are required; parcelCount and totalAmount are coerced.
func (h *SubmissionHandler) Donate(w http.ResponseWriter, r *http.Request) {
	var req donateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	count, err := h.svc.SubmitDonation(r.Context(), service.DonationInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ParcelName:  req.ParcelName,
		ParcelCount: req.ParcelCount,
		TotalAmount: req.TotalAmount,
	})
	if err != nil {
		writeSubmitError(w, r, "donation", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Thank you for your donation!",
		"count":   count,
	})
}

// DonationCount handles GET /api/donate/count.
func (h *SubmissionHandler) DonationCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": h.svc.DonationCount(r.Context())})
}

type volunteerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Help    string `json:"help"`
	Message string `json:"message"`
}

// Volunteer handles POST /api/volunteer. message is optional.
func (h *SubmissionHandler) Volunteer(w http.ResponseWriter, r *http.Request) {
	var req volunteerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.svc.SubmitVolunteer(r.Context(), service.VolunteerInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Help:    req.Help,
		Message: req.Message,
	})
	if err != nil {
		writeSubmitError(w, r, "volunteer", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Thank you for signing up to volunteer!"})
}

type newsletterRequest struct {
	Email string `json:"email"`
}

// Newsletter handles POST /api/newsletter.
// 登録済みのアドレスには 201 ではなく 200 を返す
func (h *SubmissionHandler) Newsletter(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subscribed, err := h.svc.SubscribeNewsletter(r.Context(), req.Email)
	if err != nil {
		writeSubmitError(w, r, "newsletter", err)
		return
	}
	if !subscribed {
		writeJSON(w, http.StatusOK, map[string]string{"message": "You are already subscribed."})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Subscribed to the newsletter!"})
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Contact handles POST /api/contact. name, email and message are required.
func (h *SubmissionHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.svc.SubmitContact(r.Context(), service.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		writeSubmitError(w, r, "contact", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Thank you for your message!"})
}
