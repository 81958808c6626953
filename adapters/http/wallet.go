package otphttp

import (
	"errors"
	"net/http"
	"strconv"

	core "github.com/otpbuy/otpbuy/core"
)

func (s *Service) handleWalletBalanceGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLWalletBalance) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	bal, err := s.svc.WalletBalance(r.Context(), cl.UserID)
	if err != nil {
		serverErr(w, "balance_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": bal})
}

func (s *Service) handleWalletTransactionsGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLWalletTxns) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	limit, offset := pageParams(r, 50)
	txns, err := s.svc.ListTransactions(r.Context(), cl.UserID, limit, offset)
	if err != nil {
		serverErr(w, "transactions_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (s *Service) handlePromoRedeemPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLPromoRedeem) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Code == "" {
		badRequest(w, "invalid_request")
		return
	}
	res, err := s.svc.RedeemPromoCode(r.Context(), req.Code, cl.UserID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrPromoNotFound):
			notFound(w, "promo_not_found")
		case errors.Is(err, core.ErrPromoInactive):
			badRequest(w, "promo_inactive")
		case errors.Is(err, core.ErrPromoExpired):
			badRequest(w, "promo_expired")
		case errors.Is(err, core.ErrPromoExhausted):
			badRequest(w, "promo_exhausted")
		case errors.Is(err, core.ErrPromoAlreadyRedeemed):
			conflict(w, "promo_already_redeemed")
		default:
			serverErr(w, "promo_redeem_failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount":      res.Amount,
		"new_balance": res.NewBalance,
	})
}

func pageParams(r *http.Request, defLimit int) (limit, offset int) {
	limit = defLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
