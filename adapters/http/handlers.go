package otphttp

import (
	"net/http"

	core "github.com/otpbuy/otpbuy/core"
)

// APIHandler returns a handler that serves the JSON API routes under /api/*.
// It is intended to be mounted under the host's mux/router at any prefix.
func (s *Service) APIHandler() http.Handler {
	if s == nil || s.svc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { serverErr(w, "otpbuy_not_initialized") })
	}
	if !core.IsDevEnvironment() {
		if s.svc.EphemeralMode() != core.EphemeralRedis {
			panic("otpbuy: redis-compatible ephemeral store is required in production")
		}
	}

	mux := http.NewServeMux()

	// Registration + login
	mux.Handle("POST /api/auth/register", http.HandlerFunc(s.handleRegisterPOST))
	mux.Handle("POST /api/auth/login", http.HandlerFunc(s.handleLoginPOST))

	// Stock is public: the storefront shows availability before sign-in.
	mux.Handle("GET /api/stock", http.HandlerFunc(s.handleStockGET))

	required := Required(s.svc)
	mux.Handle("GET /api/session", required(http.HandlerFunc(s.handleSessionGET)))
	mux.Handle("DELETE /api/auth/logout", required(http.HandlerFunc(s.handleLogoutDELETE)))

	// Wallet + promo codes
	mux.Handle("GET /api/wallet/balance", required(http.HandlerFunc(s.handleWalletBalanceGET)))
	mux.Handle("GET /api/wallet/transactions", required(http.HandlerFunc(s.handleWalletTransactionsGET)))
	mux.Handle("POST /api/promo/redeem", required(http.HandlerFunc(s.handlePromoRedeemPOST)))

	// Number rental
	mux.Handle("POST /api/numbers", required(http.HandlerFunc(s.handleNumberAcquirePOST)))
	mux.Handle("GET /api/numbers", required(http.HandlerFunc(s.handleNumbersListGET)))
	mux.Handle("GET /api/numbers/{activation_id}", required(http.HandlerFunc(s.handleNumberGET)))
	mux.Handle("DELETE /api/numbers/{activation_id}", required(http.HandlerFunc(s.handleNumberCancelDELETE)))
	mux.Handle("POST /api/numbers/{activation_id}/poll", required(http.HandlerFunc(s.handleNumberPollPOST)))

	// Payments
	mux.Handle("POST /api/payments/paytm/initiate", required(http.HandlerFunc(s.handlePaytmInitiatePOST)))
	mux.Handle("POST /api/payments/cryptomus/initiate", required(http.HandlerFunc(s.handleCryptomusInitiatePOST)))
	mux.Handle("GET /api/payments/upi/settings", required(http.HandlerFunc(s.handleUPISettingsGET)))
	mux.Handle("POST /api/payments/upi/submit-utr", required(http.HandlerFunc(s.handleUPISubmitUTRPOST)))
	mux.Handle("GET /api/payments/{order_id}", required(http.HandlerFunc(s.handlePaymentOrderGET)))
	mux.Handle("POST /api/payments/{order_id}/verify", required(http.HandlerFunc(s.handlePaymentVerifyPOST)))

	// Admin routes: any-admin reads, manager+ writes, owner-only role edits.
	anyAdmin := func(h http.Handler) http.Handler { return required(RequireLevel(s.svc, core.LevelHandler)(h)) }
	manager := func(h http.Handler) http.Handler { return required(RequireLevel(s.svc, core.LevelManager)(h)) }
	owner := func(h http.Handler) http.Handler { return required(RequireOwner(s.svc)(h)) }

	mux.Handle("GET /api/admin/users", anyAdmin(http.HandlerFunc(s.handleAdminUsersListGET)))
	mux.Handle("GET /api/admin/users/{user_id}/transactions", anyAdmin(http.HandlerFunc(s.handleAdminUserTransactionsGET)))
	mux.Handle("POST /api/admin/users/{user_id}/ban", manager(http.HandlerFunc(s.handleAdminUserBanPOST)))
	mux.Handle("POST /api/admin/users/{user_id}/unban", manager(http.HandlerFunc(s.handleAdminUserUnbanPOST)))
	mux.Handle("PATCH /api/admin/users/{user_id}/name", manager(http.HandlerFunc(s.handleAdminUserNamePATCH)))
	mux.Handle("POST /api/admin/users/{user_id}/reset-password", manager(http.HandlerFunc(s.handleAdminUserResetPasswordPOST)))
	mux.Handle("POST /api/admin/users/{user_id}/balance", manager(http.HandlerFunc(s.handleAdminUserBalancePOST)))

	mux.Handle("GET /api/admin/servers", anyAdmin(http.HandlerFunc(s.handleAdminServersListGET)))
	mux.Handle("POST /api/admin/servers", manager(http.HandlerFunc(s.handleAdminServerCreatePOST)))
	mux.Handle("PATCH /api/admin/servers/{id}", manager(http.HandlerFunc(s.handleAdminServerPATCH)))
	mux.Handle("DELETE /api/admin/servers/{id}", manager(http.HandlerFunc(s.handleAdminServerDELETE)))

	mux.Handle("GET /api/admin/services", anyAdmin(http.HandlerFunc(s.handleAdminServicesListGET)))
	mux.Handle("POST /api/admin/services", manager(http.HandlerFunc(s.handleAdminServiceCreatePOST)))
	mux.Handle("PATCH /api/admin/services/{id}", manager(http.HandlerFunc(s.handleAdminServicePATCH)))
	mux.Handle("DELETE /api/admin/services/{id}", manager(http.HandlerFunc(s.handleAdminServiceDELETE)))

	mux.Handle("GET /api/admin/promos", anyAdmin(http.HandlerFunc(s.handleAdminPromosListGET)))
	mux.Handle("POST /api/admin/promos", manager(http.HandlerFunc(s.handleAdminPromoCreatePOST)))
	mux.Handle("PATCH /api/admin/promos/{code}", manager(http.HandlerFunc(s.handleAdminPromoPATCH)))
	mux.Handle("DELETE /api/admin/promos/{code}", manager(http.HandlerFunc(s.handleAdminPromoDELETE)))

	mux.Handle("PUT /api/admin/upi-settings", manager(http.HandlerFunc(s.handleAdminUPISettingsPUT)))

	mux.Handle("POST /api/admin/roles/grant", owner(http.HandlerFunc(s.handleAdminRolesGrantPOST)))
	mux.Handle("POST /api/admin/roles/revoke", owner(http.HandlerFunc(s.handleAdminRolesRevokePOST)))

	mux.Handle("POST /api/admin/impersonate", manager(http.HandlerFunc(s.handleAdminImpersonatePOST)))
	mux.Handle("POST /api/admin/impersonate/return", required(http.HandlerFunc(s.handleAdminImpersonateReturnPOST)))

	return mux
}
