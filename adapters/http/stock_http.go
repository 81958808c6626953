package otphttp

import (
	"net/http"
)

// handleStockGET serves per-service availability merged across all enabled
// servers. Counts come from the shared TTL cache; a null count means no
// provider reported anything for that service.
func (s *Service) handleStockGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLStockGet) {
		tooMany(w)
		return
	}
	ix, err := s.stock.Get(r.Context())
	if err != nil {
		serverErr(w, "stock_unavailable")
		return
	}
	pairs, err := s.svc.StockPairs(r.Context())
	if err != nil {
		serverErr(w, "stock_unavailable")
		return
	}
	out := make(map[string]*int, len(pairs))
	for name, ps := range pairs {
		out[name] = ix.ServiceTotal(ps)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": out})
}
