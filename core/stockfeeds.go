package core

import (
	"context"
	stdlog "log"

	"github.com/otpbuy/otpbuy/stock"
)

// Feeds gathers the raw stock feeds from every enabled server. One failing
// provider does not sink the others: its feed is simply absent, and the
// aggregation layer reports unknown only when no feed produced data at all.
func (s *Service) Feeds(ctx context.Context) (stock.SuffixFeed, stock.OperatorFeed, error) {
	servers, err := s.ListServers(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	suffix := make(stock.SuffixFeed)
	operator := make(stock.OperatorFeed)
	for _, srv := range servers {
		client, _, err := s.resolveClient(ctx, srv.ID)
		if err != nil {
			stdlog.Printf("[otpbuy/stock] resolve server=%s: %v", srv.ID, err)
			continue
		}
		st, err := client.Stock(ctx)
		if err != nil {
			stdlog.Printf("[otpbuy/stock] fetch server=%s: %v", srv.ID, err)
			continue
		}
		if len(st.Suffix) > 0 {
			suffix[srv.ID] = st.Suffix
		}
		if len(st.Operator) > 0 {
			operator[srv.ID] = st.Operator
		}
	}
	return suffix, operator, nil
}

// StockPairs maps enabled offers into aggregation pairs grouped by service
// name.
func (s *Service) StockPairs(ctx context.Context) (map[string][]stock.Pair, error) {
	offers, err := s.ListServiceOffers(ctx, true)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]stock.Pair)
	for _, o := range offers {
		grouped[o.Name] = append(grouped[o.Name], stock.Pair{
			ServerID:    o.ServerID,
			ServiceCode: o.ServiceCode,
			ServiceName: o.Name,
		})
	}
	return grouped, nil
}
