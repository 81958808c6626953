package core

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"

	"github.com/jackc/pgx/v5"
)

// Admin levels. Capability flags derive solely from the level plus the owner
// bit; see DerivePermissions.
const (
	LevelUser    = 0
	LevelHandler = 1
	LevelManager = 2
	LevelOwner   = 3
)

// RoleRecord is the raw role row for a user.
type RoleRecord struct {
	Role    string
	Level   int
	IsOwner bool
}

// Permissions is the full capability set derived from a RoleRecord. It is
// recomputed on every fetch and never partially updated.
type Permissions struct {
	Role      string
	Level     int
	IsAdmin   bool
	IsOwner   bool
	IsManager bool
	IsHandler bool

	// Any admin (level >= 1).
	CanViewUsers        bool
	CanViewServers      bool
	CanViewServices     bool
	CanViewTransactions bool
	CanViewPromoCodes   bool
	CanViewActivations  bool
	CanHandleTickets    bool

	// Manager and above (level >= 2).
	CanEditUsers        bool
	CanEditBalance      bool
	CanResetPasswords   bool
	CanBanUsers         bool
	CanManageServers    bool
	CanManageServices   bool
	CanManagePricing    bool
	CanManagePromoCodes bool
	CanManagePayments   bool

	// Owner only, regardless of level.
	CanManageAdmins bool
}

// NoAccess is the safe default published on missing role rows and fetch
// failures. Everything false, role "user".
func NoAccess() Permissions {
	return Permissions{Role: "user", Level: LevelUser}
}

// DerivePermissions computes the capability set from a role record. Pure
// function of (level, is_owner).
func DerivePermissions(rec RoleRecord) Permissions {
	anyAdmin := rec.Level >= LevelHandler
	managerUp := rec.Level >= LevelManager
	p := Permissions{
		Role:      rec.Role,
		Level:     rec.Level,
		IsAdmin:   anyAdmin,
		IsOwner:   rec.IsOwner,
		IsManager: managerUp,
		IsHandler: rec.Level == LevelHandler,

		CanViewUsers:        anyAdmin,
		CanViewServers:      anyAdmin,
		CanViewServices:     anyAdmin,
		CanViewTransactions: anyAdmin,
		CanViewPromoCodes:   anyAdmin,
		CanViewActivations:  anyAdmin,
		CanHandleTickets:    anyAdmin,

		CanEditUsers:        managerUp,
		CanEditBalance:      managerUp,
		CanResetPasswords:   managerUp,
		CanBanUsers:         managerUp,
		CanManageServers:    managerUp,
		CanManageServices:   managerUp,
		CanManagePricing:    managerUp,
		CanManagePromoCodes: managerUp,
		CanManagePayments:   managerUp,

		CanManageAdmins: rec.IsOwner,
	}
	if p.Role == "" {
		p.Role = "user"
	}
	return p
}

// GetAdminRole fetches the role row for a user. A missing row is a plain
// "user" record, not an error.
func (s *Service) GetAdminRole(ctx context.Context, userID string) (RoleRecord, error) {
	if s.pg == nil {
		return RoleRecord{Role: "user"}, fmt.Errorf("postgres not configured")
	}
	var rec RoleRecord
	err := s.pg.QueryRow(ctx, `
		SELECT role, level, is_owner FROM otpbuy.user_roles WHERE user_id=$1
	`, userID).Scan(&rec.Role, &rec.Level, &rec.IsOwner)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleRecord{Role: "user"}, nil
	}
	if err != nil {
		return RoleRecord{Role: "user"}, err
	}
	return rec, nil
}

// GetUserRole returns just the role slug.
func (s *Service) GetUserRole(ctx context.Context, userID string) (string, error) {
	rec, err := s.GetAdminRole(ctx, userID)
	return rec.Role, err
}

// Permissions returns the derived capability set for a user, served from the
// shared TTL cache when fresh. Concurrent callers for the same id share one
// fetch. Fetch failures publish NoAccess and are not cached, so the next call
// retries.
func (s *Service) Permissions(ctx context.Context, userID string) Permissions {
	if userID == "" {
		return NoAccess()
	}
	return s.perms.Load(userID, func() (Permissions, error) {
		rec, err := s.GetAdminRole(ctx, userID)
		if err != nil {
			stdlog.Printf("[otpbuy/roles] fetch failed user=%s: %v", userID, err)
			return NoAccess(), err
		}
		return DerivePermissions(rec), nil
	})
}

// GrantRole sets (or replaces) a user's role row. Caller must hold
// CanManageAdmins; the adapter enforces that.
func (s *Service) GrantRole(ctx context.Context, userID, role string, level int, isOwner bool) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	if level < LevelUser || level > LevelOwner {
		return fmt.Errorf("invalid level %d", level)
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO otpbuy.user_roles (user_id, role, level, is_owner)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET role=EXCLUDED.role, level=EXCLUDED.level, is_owner=EXCLUDED.is_owner, updated_at=NOW()
	`, userID, role, level, isOwner)
	if err == nil {
		s.perms.InvalidateAll()
	}
	return err
}

// RevokeRole removes a user's role row.
func (s *Service) RevokeRole(ctx context.Context, userID string) error {
	if s.pg == nil {
		return fmt.Errorf("postgres not configured")
	}
	_, err := s.pg.Exec(ctx, `DELETE FROM otpbuy.user_roles WHERE user_id=$1`, userID)
	if err == nil {
		s.perms.InvalidateAll()
	}
	return err
}
