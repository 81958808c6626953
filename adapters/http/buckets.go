package otphttp

// Bucket names used by OTPBUY endpoints.
const (
	RLAuthRegister = "otp_auth_register"
	RLAuthLogin    = "otp_auth_login"
	RLAuthLogout   = "otp_auth_logout"
	RLAuthSession  = "otp_auth_session"

	RLWalletBalance = "otp_wallet_balance"
	RLWalletTxns    = "otp_wallet_txns"
	RLPromoRedeem   = "otp_promo_redeem"

	RLNumberAcquire = "otp_number_acquire"
	RLNumberList    = "otp_number_list"
	RLNumberCancel  = "otp_number_cancel"
	RLNumberPoll    = "otp_number_poll"

	RLStockGet = "otp_stock_get"

	RLPayInitiate  = "otp_pay_initiate"
	RLPayVerify    = "otp_pay_verify"
	RLPayManualUTR = "otp_pay_manual_utr"

	RLAdminRead        = "otp_admin_read"
	RLAdminWrite       = "otp_admin_write"
	RLAdminImpersonate = "otp_admin_impersonate"
)
