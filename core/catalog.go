package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not_found")

// Server is one upstream SMS-provider account.
type Server struct {
	ID        string
	Name      string
	Provider  string // provider.Kind
	APIKey    string
	Enabled   bool
	Priority  int
	CreatedAt time.Time
}

// ServiceOffer is one purchasable service on a server (e.g. "Telegram" on
// smsbower as code "tg"). Grouped services share a Name across servers.
type ServiceOffer struct {
	ID          string
	ServerID    string
	ServiceCode string
	Name        string
	Price       float64
	Enabled     bool
	CreatedAt   time.Time
}

// UPISettings configures the manual UPI top-up channel.
type UPISettings struct {
	VPA       string
	Enabled   bool
	MinAmount float64
	MaxAmount float64
}

const serverCols = `id, name, provider, api_key, enabled, priority, created_at`

func scanServer(row pgx.Row) (*Server, error) {
	var v Server
	if err := row.Scan(&v.ID, &v.Name, &v.Provider, &v.APIKey, &v.Enabled, &v.Priority, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (s *Service) GetServer(ctx context.Context, id string) (*Server, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	return scanServer(s.pg.QueryRow(ctx, `SELECT `+serverCols+` FROM otpbuy.servers WHERE id=$1`, id))
}

func (s *Service) ListServers(ctx context.Context, enabledOnly bool) ([]Server, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	q := `SELECT ` + serverCols + ` FROM otpbuy.servers`
	if enabledOnly {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY priority, name`
	rows, err := s.pg.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Server
	for rows.Next() {
		var v Server
		if err := rows.Scan(&v.ID, &v.Name, &v.Provider, &v.APIKey, &v.Enabled, &v.Priority, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Service) CreateServer(ctx context.Context, name, providerKind, apiKey string, priority int) (*Server, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	return scanServer(s.pg.QueryRow(ctx, `
		INSERT INTO otpbuy.servers (name, provider, api_key, enabled, priority)
		VALUES ($1, $2, $3, true, $4)
		RETURNING `+serverCols, name, providerKind, apiKey, priority))
}

func (s *Service) UpdateServer(ctx context.Context, id string, name, apiKey *string, enabled *bool, priority *int) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `
		UPDATE otpbuy.servers SET
			name     = COALESCE($2, name),
			api_key  = COALESCE($3, api_key),
			enabled  = COALESCE($4, enabled),
			priority = COALESCE($5, priority)
		WHERE id=$1
	`, id, name, apiKey, enabled, priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) DeleteServer(ctx context.Context, id string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `DELETE FROM otpbuy.servers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const offerCols = `id, server_id, service_code, name, price, enabled, created_at`

func scanOffer(row pgx.Row) (*ServiceOffer, error) {
	var v ServiceOffer
	if err := row.Scan(&v.ID, &v.ServerID, &v.ServiceCode, &v.Name, &v.Price, &v.Enabled, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (s *Service) GetServiceOffer(ctx context.Context, id string) (*ServiceOffer, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	return scanOffer(s.pg.QueryRow(ctx, `SELECT id, server_id, service_code, name, price::float8, enabled, created_at FROM otpbuy.services WHERE id=$1`, id))
}

func (s *Service) ListServiceOffers(ctx context.Context, enabledOnly bool) ([]ServiceOffer, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	q := `SELECT id, server_id, service_code, name, price::float8, enabled, created_at FROM otpbuy.services`
	if enabledOnly {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY name, server_id`
	rows, err := s.pg.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceOffer
	for rows.Next() {
		var v ServiceOffer
		if err := rows.Scan(&v.ID, &v.ServerID, &v.ServiceCode, &v.Name, &v.Price, &v.Enabled, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Service) CreateServiceOffer(ctx context.Context, serverID, serviceCode, name string, price float64) (*ServiceOffer, error) {
	if s.pg == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	if price < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}
	return scanOffer(s.pg.QueryRow(ctx, `
		INSERT INTO otpbuy.services (server_id, service_code, name, price, enabled)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id, server_id, service_code, name, price::float8, enabled, created_at
	`, serverID, serviceCode, name, price))
}

func (s *Service) UpdateServiceOffer(ctx context.Context, id string, name *string, price *float64, enabled *bool) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `
		UPDATE otpbuy.services SET
			name    = COALESCE($2, name),
			price   = COALESCE($3, price),
			enabled = COALESCE($4, enabled)
		WHERE id=$1
	`, id, name, price, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) DeleteServiceOffer(ctx context.Context, id string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	tag, err := s.pg.Exec(ctx, `DELETE FROM otpbuy.services WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUPISettings returns the singleton UPI settings row, defaulting to
// disabled when absent.
func (s *Service) GetUPISettings(ctx context.Context) (UPISettings, error) {
	if s.pg == nil {
		return UPISettings{}, fmt.Errorf("postgres not configured")
	}
	var u UPISettings
	err := s.pg.QueryRow(ctx, `
		SELECT vpa, enabled, min_amount::float8, max_amount::float8 FROM otpbuy.upi_settings WHERE singleton
	`).Scan(&u.VPA, &u.Enabled, &u.MinAmount, &u.MaxAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return UPISettings{}, nil
	}
	return u, err
}

func (s *Service) UpdateUPISettings(ctx context.Context, u UPISettings) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO otpbuy.upi_settings (singleton, vpa, enabled, min_amount, max_amount)
		VALUES (true, $1, $2, $3, $4)
		ON CONFLICT (singleton) DO UPDATE SET vpa=EXCLUDED.vpa, enabled=EXCLUDED.enabled, min_amount=EXCLUDED.min_amount, max_amount=EXCLUDED.max_amount
	`, u.VPA, u.Enabled, u.MinAmount, u.MaxAmount)
	return err
}
