package otphttp

import (
	"context"
	"errors"
	"net/http"

	core "github.com/otpbuy/otpbuy/core"
	"github.com/otpbuy/otpbuy/provider"
)

func numberJSON(n *core.ActiveNumber) map[string]any {
	msgs := n.Messages
	if msgs == nil {
		msgs = []core.Message{}
	}
	return map[string]any{
		"id":               n.ID,
		"activation_id":    n.ActivationID,
		"phone_number":     n.PhoneNumber,
		"price":            n.Price,
		"status":           n.Status,
		"messages":         msgs,
		"has_otp_received": n.HasOTPReceived,
		"server_id":        n.ServerID,
		"service_id":       n.ServiceID,
		"created_at":       n.CreatedAt,
	}
}

// handleNumberAcquirePOST buys a number and starts its OTP poller. A saved=false
// reply means the purchase went through upstream but the record was not yet
// readable; the client should warn rather than retry the purchase.
func (s *Service) handleNumberAcquirePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLNumberAcquire) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		ServiceID string `json:"service_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.ServiceID == "" {
		badRequest(w, "invalid_request")
		return
	}
	res, err := s.svc.AcquireNumber(r.Context(), cl.UserID, req.ServiceID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInsufficientBalance):
			sendErr(w, http.StatusPaymentRequired, "insufficient_balance")
		case errors.Is(err, core.ErrNotFound):
			notFound(w, "service_not_found")
		case provider.KindOf(err) == provider.NoNumbers:
			conflict(w, "no_numbers_available")
		case provider.KindOf(err) == provider.NoBalance:
			serverErr(w, "provider_out_of_balance")
		case provider.KindOf(err) == provider.BadKey:
			serverErr(w, "provider_rejected_key")
		default:
			serverErr(w, "acquire_failed")
		}
		return
	}

	// Poll in the background from here on; the poller id is the activation id.
	// Detached from the request context so the loop outlives this response.
	s.actPoll.Track(context.Background(), cl.UserID, res.Number.ActivationID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"number": numberJSON(res.Number),
		"saved":  res.Saved,
	})
}

func (s *Service) handleNumbersListGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLNumberList) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	nums, err := s.svc.ListActiveNumbers(r.Context(), cl.UserID)
	if err != nil {
		serverErr(w, "numbers_read_failed")
		return
	}
	out := make([]map[string]any, 0, len(nums))
	for i := range nums {
		out = append(out, numberJSON(&nums[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"numbers": out})
}

// handleNumberGET returns one activation with its received messages.
func (s *Service) handleNumberGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLNumberList) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	n, err := s.svc.GetActiveNumber(r.Context(), r.PathValue("activation_id"))
	if err != nil {
		serverErr(w, "number_read_failed")
		return
	}
	if n == nil || n.UserID != cl.UserID {
		notFound(w, "number_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"number": numberJSON(n)})
}

func (s *Service) handleNumberCancelDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLNumberCancel) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	activationID := r.PathValue("activation_id")
	bal, err := s.svc.CancelActivation(r.Context(), cl.UserID, activationID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			notFound(w, "number_not_found")
		case errors.Is(err, core.ErrForbidden):
			forbidden(w, "forbidden")
		case provider.KindOf(err) == provider.EarlyCancelDenied:
			conflict(w, "early_cancel_denied")
		default:
			serverErr(w, "cancel_failed")
		}
		return
	}
	s.actPoll.Stop(activationID)
	writeJSON(w, http.StatusOK, map[string]any{"new_balance": bal})
}

// handleNumberPollPOST performs one on-demand status check, for clients that
// want an immediate answer instead of waiting for the background tick.
func (s *Service) handleNumberPollPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLNumberPoll) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	activationID := r.PathValue("activation_id")
	n, err := s.svc.GetActiveNumber(r.Context(), activationID)
	if err != nil {
		serverErr(w, "number_read_failed")
		return
	}
	if n == nil || n.UserID != cl.UserID {
		notFound(w, "number_not_found")
		return
	}
	res, err := s.svc.PollActivation(r.Context(), activationID)
	if err != nil {
		serverErr(w, "poll_failed")
		return
	}
	reply := map[string]any{
		"auto_cancelled": res.AutoCancelled,
		"cancelled":      res.Cancelled,
		"completed":      res.Completed,
		"has_otp":        res.HasOTP,
	}
	if res.ErrorKind != "" {
		reply["error_kind"] = res.ErrorKind
		reply["error_message"] = provider.MessageFor(res.ErrorKind)
	}
	if res.AutoCancelled {
		reply["new_balance"] = res.NewBalance
	}
	if res.Message != nil {
		reply["message"] = res.Message
	}
	writeJSON(w, http.StatusOK, reply)
}
