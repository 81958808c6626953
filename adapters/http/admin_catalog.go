package otphttp

import (
	"errors"
	"net/http"
	"time"

	core "github.com/otpbuy/otpbuy/core"
)

func (s *Service) handleAdminServersListGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminRead) {
		tooMany(w)
		return
	}
	servers, err := s.svc.ListServers(r.Context(), false)
	if err != nil {
		serverErr(w, "servers_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Service) handleAdminServerCreatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Name     string `json:"name"`
		Provider string `json:"provider"`
		APIKey   string `json:"api_key"`
		Priority int    `json:"priority"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Provider == "" || req.APIKey == "" {
		badRequest(w, "invalid_request")
		return
	}
	srv, err := s.svc.CreateServer(r.Context(), req.Name, req.Provider, req.APIKey, req.Priority)
	if err != nil {
		badRequest(w, "server_create_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusCreated, map[string]any{"server": srv})
}

func (s *Service) handleAdminServerPATCH(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Name     *string `json:"name"`
		APIKey   *string `json:"api_key"`
		Enabled  *bool   `json:"enabled"`
		Priority *int    `json:"priority"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.UpdateServer(r.Context(), r.PathValue("id"), req.Name, req.APIKey, req.Enabled, req.Priority); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, "server_not_found")
			return
		}
		serverErr(w, "server_update_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminServerDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	if err := s.svc.DeleteServer(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, "server_not_found")
			return
		}
		serverErr(w, "server_delete_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminServicesListGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminRead) {
		tooMany(w)
		return
	}
	offers, err := s.svc.ListServiceOffers(r.Context(), false)
	if err != nil {
		serverErr(w, "services_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": offers})
}

func (s *Service) handleAdminServiceCreatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		ServerID    string  `json:"server_id"`
		ServiceCode string  `json:"service_code"`
		Name        string  `json:"name"`
		Price       float64 `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil || req.ServerID == "" || req.ServiceCode == "" || req.Name == "" || req.Price <= 0 {
		badRequest(w, "invalid_request")
		return
	}
	offer, err := s.svc.CreateServiceOffer(r.Context(), req.ServerID, req.ServiceCode, req.Name, req.Price)
	if err != nil {
		badRequest(w, "service_create_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusCreated, map[string]any{"service": offer})
}

func (s *Service) handleAdminServicePATCH(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Name    *string  `json:"name"`
		Price   *float64 `json:"price"`
		Enabled *bool    `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.UpdateServiceOffer(r.Context(), r.PathValue("id"), req.Name, req.Price, req.Enabled); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, "service_not_found")
			return
		}
		serverErr(w, "service_update_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminServiceDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	if err := s.svc.DeleteServiceOffer(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, "service_not_found")
			return
		}
		serverErr(w, "service_delete_failed")
		return
	}
	s.stock.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminPromosListGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminRead) {
		tooMany(w)
		return
	}
	promos, err := s.svc.ListPromoCodes(r.Context())
	if err != nil {
		serverErr(w, "promos_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promo_codes": promos})
}

func (s *Service) handleAdminPromoCreatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Code      string     `json:"code"`
		Amount    float64    `json:"amount"`
		MaxUses   int        `json:"max_uses"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Amount <= 0 {
		badRequest(w, "invalid_request")
		return
	}
	if req.Code == "" {
		req.Code = core.GeneratePromoCode(10)
	}
	promo, err := s.svc.CreatePromoCode(r.Context(), req.Code, req.Amount, req.MaxUses, req.ExpiresAt)
	if err != nil {
		badRequest(w, "promo_create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"promo_code": promo})
}

func (s *Service) handleAdminPromoPATCH(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.SetPromoCodeActive(r.Context(), r.PathValue("code"), *req.Active); err != nil {
		if errors.Is(err, core.ErrPromoNotFound) {
			notFound(w, "promo_not_found")
			return
		}
		serverErr(w, "promo_update_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminPromoDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	if err := s.svc.DeletePromoCode(r.Context(), r.PathValue("code")); err != nil {
		if errors.Is(err, core.ErrPromoNotFound) {
			notFound(w, "promo_not_found")
			return
		}
		serverErr(w, "promo_delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminUPISettingsPUT(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		VPA       string  `json:"vpa"`
		Enabled   bool    `json:"enabled"`
		MinAmount float64 `json:"min_amount"`
		MaxAmount float64 `json:"max_amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	settings := core.UPISettings{
		VPA:       req.VPA,
		Enabled:   req.Enabled,
		MinAmount: req.MinAmount,
		MaxAmount: req.MaxAmount,
	}
	if err := s.svc.UpdateUPISettings(r.Context(), settings); err != nil {
		serverErr(w, "settings_update_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
