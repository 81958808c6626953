package otphttp

import (
	"context"
	"errors"
	"net/http"

	core "github.com/otpbuy/otpbuy/core"
	"github.com/otpbuy/otpbuy/poll"
)

const defaultPendingMinutes = 10

func (s *Service) handlePaytmInitiatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayInitiate) {
		tooMany(w)
		return
	}
	if s.paytm == nil {
		serverErr(w, "gateway_not_configured")
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Amount <= 0 {
		badRequest(w, "invalid_request")
		return
	}
	order, err := s.svc.CreatePaymentOrder(r.Context(), cl.UserID, core.GatewayPaytm, req.Amount, defaultPendingMinutes)
	if err != nil {
		serverErr(w, "order_create_failed")
		return
	}
	po, err := s.paytm.Initiate(r.Context(), order.OrderID, order.Amount)
	if err != nil {
		_ = s.svc.FailPaymentOrder(r.Context(), order.OrderID, core.OrderFailure)
		serverErr(w, "gateway_initiate_failed")
		return
	}
	s.payPoll.Track(context.Background(), cl.UserID, order.OrderID, s.paytm)
	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":            po.OrderID,
		"amount":              po.Amount,
		"txn_token":           po.TxnToken,
		"upi_url":             po.UPIURL,
		"qr_url":              po.QRURL,
		"max_pending_minutes": order.MaxPendingMinutes,
	})
}

func (s *Service) handleCryptomusInitiatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayInitiate) {
		tooMany(w)
		return
	}
	if s.cryptomus == nil {
		serverErr(w, "gateway_not_configured")
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Amount <= 0 {
		badRequest(w, "invalid_request")
		return
	}
	order, err := s.svc.CreatePaymentOrder(r.Context(), cl.UserID, core.GatewayCryptomus, req.Amount, defaultPendingMinutes)
	if err != nil {
		serverErr(w, "order_create_failed")
		return
	}
	payURL, err := s.cryptomus.Initiate(r.Context(), order.OrderID, order.Amount)
	if err != nil {
		_ = s.svc.FailPaymentOrder(r.Context(), order.OrderID, core.OrderFailure)
		serverErr(w, "gateway_initiate_failed")
		return
	}
	s.payPoll.Track(context.Background(), cl.UserID, order.OrderID, s.cryptomus)
	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":            order.OrderID,
		"amount":              order.Amount,
		"payment_url":         payURL,
		"max_pending_minutes": order.MaxPendingMinutes,
	})
}

func (s *Service) handlePaymentOrderGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayVerify) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	order, err := s.svc.GetPaymentOrder(r.Context(), r.PathValue("order_id"))
	if err != nil {
		serverErr(w, "order_read_failed")
		return
	}
	if order == nil || order.UserID != cl.UserID {
		notFound(w, "order_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":   order.OrderID,
		"gateway":    order.Gateway,
		"amount":     order.Amount,
		"status":     order.Status,
		"created_at": order.CreatedAt,
	})
}

// handlePaymentVerifyPOST runs one synchronous verification round against the
// order's gateway, for return-from-gateway landings that should not wait for
// the background poller.
func (s *Service) handlePaymentVerifyPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayVerify) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	order, err := s.svc.GetPaymentOrder(r.Context(), r.PathValue("order_id"))
	if err != nil {
		serverErr(w, "order_read_failed")
		return
	}
	if order == nil || order.UserID != cl.UserID {
		notFound(w, "order_not_found")
		return
	}
	if order.Status != core.OrderPending {
		writeJSON(w, http.StatusOK, map[string]any{"status": order.Status})
		return
	}

	var verifier poll.Verifier
	switch order.Gateway {
	case core.GatewayPaytm:
		if s.paytm != nil {
			verifier = s.paytm
		}
	case core.GatewayCryptomus:
		if s.cryptomus != nil {
			verifier = s.cryptomus
		}
	}
	if verifier == nil {
		serverErr(w, "gateway_not_configured")
		return
	}

	status, utr, err := verifier.Verify(r.Context(), order.OrderID)
	if err != nil {
		serverErr(w, "verify_failed")
		return
	}
	switch status {
	case core.OrderSuccess:
		bal, err := s.svc.SettlePaymentOrder(r.Context(), order.OrderID, utr)
		if err != nil {
			serverErr(w, "settle_failed")
			return
		}
		s.payPoll.Stop(order.OrderID)
		writeJSON(w, http.StatusOK, map[string]any{"status": core.OrderSuccess, "new_balance": bal})
	case core.OrderFailure:
		if err := s.svc.FailPaymentOrder(r.Context(), order.OrderID, core.OrderFailure); err != nil {
			serverErr(w, "verify_failed")
			return
		}
		s.payPoll.Stop(order.OrderID)
		writeJSON(w, http.StatusOK, map[string]any{"status": core.OrderFailure})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": core.OrderPending})
	}
}

func (s *Service) handleUPISettingsGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayVerify) {
		tooMany(w)
		return
	}
	settings, err := s.svc.GetUPISettings(r.Context())
	if err != nil {
		serverErr(w, "settings_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vpa":        settings.VPA,
		"enabled":    settings.Enabled,
		"min_amount": settings.MinAmount,
		"max_amount": settings.MaxAmount,
	})
}

func (s *Service) handleUPISubmitUTRPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPayManualUTR) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		UTR    string  `json:"utr"`
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UTR == "" || req.Amount <= 0 {
		badRequest(w, "invalid_request")
		return
	}
	bal, err := s.svc.SubmitManualUTR(r.Context(), cl.UserID, req.UTR, req.Amount)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateUTR) {
			conflict(w, "duplicate_utr")
			return
		}
		badRequest(w, "utr_rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"new_balance": bal})
}
