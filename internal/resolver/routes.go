package resolver

import "net/http"

// Каталог логических операций. Порядок кандидатов задает порядок попыток:
// сначала текущая раскладка маршрутов сервера, затем прежняя.
var (
	Register = Operation{Name: "register", Candidates: []Endpoint{
		{http.MethodPost, "/auth/register"},
		{http.MethodPost, "/api/auth/register"},
	}}
	Login = Operation{Name: "login", Candidates: []Endpoint{
		{http.MethodPost, "/auth/login"},
		{http.MethodPost, "/api/auth/login"},
	}}
	ResendVerification = Operation{Name: "resend_verification", Candidates: []Endpoint{
		{http.MethodPost, "/auth/resend-verification"},
		{http.MethodPost, "/api/auth/resend-verification"},
	}}
	Profile = Operation{Name: "profile", Candidates: []Endpoint{
		{http.MethodGet, "/auth/profile"},
		{http.MethodGet, "/api/auth/profile"},
	}}

	WalletBalance = Operation{Name: "wallet_balance", Candidates: []Endpoint{
		{http.MethodGet, "/api/wallet/balance"},
		{http.MethodGet, "/wallet/balance"},
	}}
	WalletTopUp = Operation{Name: "wallet_topup", Candidates: []Endpoint{
		{http.MethodPost, "/api/wallet/topup"},
		{http.MethodPost, "/wallet/topup"},
	}}
	WalletTransactions = Operation{Name: "wallet_transactions", Candidates: []Endpoint{
		{http.MethodGet, "/api/wallet/transactions"},
		{http.MethodGet, "/wallet/transactions"},
	}}
	WalletTransfer = Operation{Name: "wallet_transfer", Candidates: []Endpoint{
		{http.MethodPost, "/api/wallet/transfer"},
		{http.MethodPost, "/wallet/transfer"},
	}}
	WalletTransferConfirm = Operation{Name: "wallet_transfer_confirm", Candidates: []Endpoint{
		{http.MethodPost, "/api/wallet/transfer/confirm"},
		{http.MethodPost, "/wallet/transfer/confirm"},
	}}

	CryptoBalance = Operation{Name: "crypto_balance", Candidates: []Endpoint{
		{http.MethodGet, "/api/crypto/balance"},
	}}
	CryptoTopUp = Operation{Name: "crypto_topup", Candidates: []Endpoint{
		{http.MethodPost, "/api/crypto/topup"},
	}}
	CryptoTransactions = Operation{Name: "crypto_transactions", Candidates: []Endpoint{
		{http.MethodGet, "/api/crypto/transactions"},
	}}
	CryptoSend = Operation{Name: "crypto_send", Candidates: []Endpoint{
		{http.MethodPost, "/api/crypto/send"},
	}}
	CryptoSendConfirm = Operation{Name: "crypto_send_confirm", Candidates: []Endpoint{
		{http.MethodPost, "/api/crypto/send/confirm"},
	}}
)
