package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/fanclubhq/fanclub-backend/internal/paystack"
	"github.com/fanclubhq/fanclub-backend/internal/reconcile"
	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

const (
	maxFormMemory    = 10 << 20 // 10MiB
	maxWebhookBody   = 1 << 20  // 1MiB
	msgMemberMissing = "member not found"
	msgInactive      = "membership is not active"
)

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	nickname := r.FormValue("nickname")
	handle := r.FormValue("tiktokHandle")
	fanSince := r.FormValue("fanSince")
	badge := r.FormValue("badge")
	nationality := r.FormValue("nationality")

	if nickname == "" || handle == "" || fanSince == "" || badge == "" || nationality == "" {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	amount, err := strconv.ParseInt(badge, 10, 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid badge amount")
		return
	}

	imagePath, err := s.saveImage(r)
	if err != nil {
		s.log.Error("save member image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	member, err := s.store.CreateMember(storage.NewMember{
		Nickname:    nickname,
		Handle:      handle,
		FanSince:    fanSince,
		Nationality: nationality,
		Email:       r.FormValue("email"),
		ImagePath:   imagePath,
		Amount:      amount,
	})
	if err != nil {
		s.log.Error("create member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create member")
		return
	}

	s.log.Info("member registered", "member_id", member.ID, "amount", member.Amount)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"userId":  member.ID,
	})
}

// saveImage stores the optional profile image under the upload dir and
// returns its path, or "" when no image was submitted.
func (s *Server) saveImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	if err := copyUpload(file, path); err != nil {
		return "", err
	}

	return path, nil
}

func copyUpload(src multipart.File, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func (s *Server) handleGeneratePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "userId and amount are required")
		return
	}

	link, err := s.reconciler.CreatePaymentLink(r.Context(), req.UserID, req.Amount)
	if err != nil {
		s.log.Error("create payment link", "error", err, "member_id", req.UserID)
		writeError(w, http.StatusInternalServerError, gatewayMessage(err, "failed to create payment link"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"paymentLink": link})
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"reference"`
		UserID    string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "reference and userId are required")
		return
	}

	_, err := s.reconciler.VerifyPayment(r.Context(), req.Reference, req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, reconcile.ErrVerificationFailed):
		writeError(w, http.StatusBadRequest, "payment verification failed")
	case errors.Is(err, reconcile.ErrInactiveMembership):
		writeError(w, http.StatusBadRequest, msgInactive)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgMemberMissing)
	default:
		s.log.Error("verify payment", "error", err, "member_id", req.UserID)
		writeError(w, http.StatusInternalServerError, gatewayMessage(err, "failed to verify payment"))
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	outcome, err := s.reconciler.HandleWebhook(r.Context(), body, r.Header.Get(paystack.SignatureHeader))
	switch {
	case errors.Is(err, reconcile.ErrInvalidSignature):
		// Intentionally vague; an unauthenticated caller learns nothing.
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgMemberMissing)
		return
	case errors.Is(err, reconcile.ErrInactiveMembership):
		writeError(w, http.StatusBadRequest, msgInactive)
		return
	case err != nil:
		s.log.Error("handle webhook", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	resp := map[string]interface{}{"received": true}
	switch outcome {
	case reconcile.OutcomeConfirmed:
		resp["message"] = "payment confirmed"
	case reconcile.OutcomeAlreadyProcessed:
		resp["message"] = "already processed"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("userId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	member, err := s.store.GetMember(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgMemberMissing)
		return
	}
	if err != nil {
		s.log.Error("get member", "error", err, "member_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load member")
		return
	}

	writeJSON(w, http.StatusOK, member)
}

// gatewayMessage surfaces the gateway's own error detail when present,
// falling back to a generic message; internal errors never leak.
func gatewayMessage(err error, fallback string) string {
	var apiErr *paystack.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
