package api

import (
	"net/http"
	"subscriber/internal/models"
)

// Subscribe registers a pending newsletter subscription from a form post
// POST /subscriptions (and /subscribe)
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid form body")
		return
	}

	sub, err := h.subscriptions.Subscribe(r.Context(), r.PostForm.Get("name"), r.PostForm.Get("email"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.SubscribeResponse{
		ID:      sub.ID,
		Status:  sub.Status,
		Message: "Check your inbox to confirm the subscription",
	})
}

// ConfirmSubscription activates the subscription owning the token
// GET /subscriptions/confirm?token=...
func (h *Handlers) ConfirmSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.Confirm(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.SubscribeResponse{
		ID:      sub.ID,
		Status:  sub.Status,
		Message: "Subscription confirmed",
	})
}
