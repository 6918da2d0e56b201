package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"userpay-client/internal/apperr"
	"userpay-client/internal/logger"
	"userpay-client/internal/metrics"
	"userpay-client/internal/models"
	"userpay-client/internal/reconcile"
	"userpay-client/internal/resolver"
	"userpay-client/internal/session"
	"userpay-client/internal/transfer"
)

// WalletService операции кошелька поверх сессии, резолвера и координатора
type WalletService struct {
	store        *session.Store
	guard        *session.Guard
	resolver     *resolver.Resolver
	coordinator  *transfer.Coordinator
	reconciler   *reconcile.Reconciler
	historyLimit int
	logger       *logrus.Logger
}

// NewWalletService создает новый экземпляр сервиса
func NewWalletService(
	store *session.Store,
	res *resolver.Resolver,
	reconciler *reconcile.Reconciler,
	notifier transfer.Notifier,
	m *metrics.Metrics,
	historyLimit int,
	logger *logrus.Logger,
) *WalletService {
	s := &WalletService{
		store:        store,
		guard:        session.NewGuard(store, logger),
		resolver:     res,
		reconciler:   reconciler,
		historyLimit: historyLimit,
		logger:       logger,
	}
	s.coordinator = transfer.NewCoordinator(&transferGateway{s: s}, notifier, m, logger)
	return s
}

// LoginResult результат входа
type LoginResult struct {
	Token string
	User  *models.Identity
}

// ConfirmResult квитанция подтверждения и баланс, перечитанный с сервера
type ConfirmResult struct {
	Receipt models.Receipt
	Balance *models.Balance
}

// Register регистрирует пользователя; сервер отправляет письмо с подтверждением
func (s *WalletService) Register(ctx context.Context, email, password string) (string, error) {
	const op = "register"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", apperr.Validation(op, "email and password are required")
	}

	raw, err := s.resolver.Resolve(ctx, nil, resolver.Register, resolver.Call{
		Body: map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return "", err
	}

	logger.ForOperation(s.logger, op).Info("Registration submitted")
	return models.ParseReceipt(raw).Message, nil
}

// ResendVerification повторно отправляет письмо с подтверждением
func (s *WalletService) ResendVerification(ctx context.Context, email string) (string, error) {
	const op = "resend_verification"

	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Validation(op, "email is required")
	}

	raw, err := s.resolver.Resolve(ctx, nil, resolver.ResendVerification, resolver.Call{
		Body: map[string]string{"email": email},
	})
	if err != nil {
		return "", err
	}
	return models.ParseReceipt(raw).Message, nil
}

// Login входит и сохраняет токен. Ответ без токена считается ошибкой,
// хранилище при этом не трогается.
func (s *WalletService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "login"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation(op, "email and password are required")
	}

	raw, err := s.resolver.Resolve(ctx, nil, resolver.Login, resolver.Call{
		Body: map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || strings.TrimSpace(resp.Token) == "" {
		logger.ForOperation(s.logger, op).Warn("Login response has no token")
		return nil, apperr.New(apperr.KindRejected, op, "No token returned from server")
	}

	// пользователь в ответе необязателен; непонятная форма не мешает входу
	var user *models.Identity
	if identity, ok := models.ParseIdentity(resp.User); ok {
		user = &identity
	}

	if err := s.store.Set(ctx, resp.Token); err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, op, err)
	}

	logger.ForOperation(s.logger, op).Info("Logged in")
	return &LoginResult{Token: resp.Token, User: user}, nil
}

// Logout очищает сессию; незавершенные переводы бросаются
func (s *WalletService) Logout(ctx context.Context) error {
	for _, p := range s.coordinator.Pending() {
		s.coordinator.Abandon(p.TransactionID)
	}
	return s.store.Clear(ctx)
}

// Whoami читает утверждения токена без обращения к сети
func (s *WalletService) Whoami() (session.Claims, bool) {
	token, ok := s.store.Get()
	if !ok {
		return session.Claims{}, false
	}
	claims, ok := session.ParseClaims(token)
	return claims, ok
}

// Profile возвращает профиль; ответ без username считается ошибкой
func (s *WalletService) Profile(ctx context.Context) (*models.Identity, error) {
	const op = "profile"

	var identity *models.Identity
	err := s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		raw, err := s.resolver.Resolve(ctx, &sess, resolver.Profile, resolver.Call{})
		if err != nil {
			return err
		}
		identity, err = parseIdentity(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func parseIdentity(raw json.RawMessage) (*models.Identity, error) {
	if direct, ok := models.ParseIdentity(raw); ok && strings.TrimSpace(direct.Username) != "" {
		return &direct, nil
	}

	// Некоторые ревизии сервера отдают {user: {...}}
	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if user, ok := models.ParseIdentity(wrapped.User); ok && strings.TrimSpace(user.Username) != "" {
			return &user, nil
		}
	}

	return nil, apperr.New(apperr.KindRejected, "profile", "Profile response has no username")
}

// Balance возвращает баланс в валюте; пустая валюта - фиат
func (s *WalletService) Balance(ctx context.Context, currency string) (*models.Balance, error) {
	const op = "balance"

	currency = models.NormalizeCurrency(currency)
	if err := models.ValidateCurrency(currency); err != nil {
		return nil, apperr.Validation(op, err.Error())
	}

	operation, call := resolver.WalletBalance, resolver.Call{}
	if models.IsCrypto(currency) {
		operation, call = resolver.CryptoBalance, resolver.WithQuery("symbol", currency)
	}

	var balance models.Balance
	err := s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		raw, err := s.resolver.Resolve(ctx, &sess, operation, call)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &balance); err != nil {
			return apperr.Wrap(apperr.KindRejected, op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance.Currency = currency
	return &balance, nil
}

// TopUp пополняет кошелек; сумма проверяется локально
func (s *WalletService) TopUp(ctx context.Context, currency string, amount decimal.Decimal) (models.Receipt, error) {
	const op = "topup"

	currency = models.NormalizeCurrency(currency)
	if err := models.ValidateCurrency(currency); err != nil {
		return models.Receipt{}, apperr.Validation(op, err.Error())
	}
	if err := models.ValidateAmount(amount); err != nil {
		return models.Receipt{}, apperr.Validation(op, err.Error())
	}

	operation := resolver.WalletTopUp
	body := map[string]interface{}{"amount": json.Number(amount.String())}
	if models.IsCrypto(currency) {
		operation = resolver.CryptoTopUp
		body["symbol"] = currency
	}

	var receipt models.Receipt
	err := s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		raw, err := s.resolver.Resolve(ctx, &sess, operation, resolver.Call{Body: body})
		if err != nil {
			return err
		}
		receipt = models.ParseReceipt(raw)
		return nil
	})
	if err != nil {
		return models.Receipt{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"currency":  currency,
	}).Infof("Top-up completed: %s", amount)
	return receipt, nil
}

// Transactions сырая история; limit <= 0 означает лимит из конфигурации
func (s *WalletService) Transactions(ctx context.Context, currency string, limit int) (json.RawMessage, error) {
	const op = "transactions"

	currency = models.NormalizeCurrency(currency)
	if err := models.ValidateCurrency(currency); err != nil {
		return nil, apperr.Validation(op, err.Error())
	}
	if limit <= 0 {
		limit = s.historyLimit
	}

	operation, call := resolver.WalletTransactions, resolver.Call{}
	if limit > 0 {
		call = resolver.WithQuery("limit", strconv.Itoa(limit))
	}
	if models.IsCrypto(currency) {
		operation = resolver.CryptoTransactions
		if call.Query == nil {
			call = resolver.WithQuery("symbol", currency)
		} else {
			call.Query.Set("symbol", currency)
		}
	}

	var raw json.RawMessage
	err := s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		var err error
		raw, err = s.resolver.Resolve(ctx, &sess, operation, call)
		return err
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Summary история, сведенная относительно текущего пользователя
func (s *WalletService) Summary(ctx context.Context, currency string) (reconcile.Summary, error) {
	raw, err := s.Transactions(ctx, currency, 0)
	if err != nil {
		return reconcile.Summary{}, err
	}

	caller := ""
	if identity, err := s.Profile(ctx); err == nil {
		caller = identity.Username
	} else if apperr.Is(err, apperr.KindAuthExpired) {
		return reconcile.Summary{}, err
	} else if claims, ok := s.Whoami(); ok {
		caller = claims.Username
	}

	return s.reconciler.Reconcile(raw, caller), nil
}

// Dashboard одно обновление главного экрана
type Dashboard struct {
	Identity        *models.Identity
	IdentityErr     error
	Balance         *models.Balance
	BalanceErr      error
	Summary         reconcile.Summary
	TransactionsErr error
	Caller          string
}

// Dashboard параллельно получает профиль, баланс и историю. Каждая часть
// хранит свою ошибку; сводка строится после завершения всех трех.
// Ошибка возвращается только при отказе в авторизации.
func (s *WalletService) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{}
	var raw json.RawMessage

	var g errgroup.Group
	g.Go(func() error {
		d.Identity, d.IdentityErr = s.Profile(ctx)
		return nil
	})
	g.Go(func() error {
		d.Balance, d.BalanceErr = s.Balance(ctx, models.FiatCurrency)
		return nil
	})
	g.Go(func() error {
		raw, d.TransactionsErr = s.Transactions(ctx, models.FiatCurrency, 0)
		return nil
	})
	_ = g.Wait()

	d.Caller = s.callerName(d)
	if d.TransactionsErr == nil {
		d.Summary = s.reconciler.Reconcile(raw, d.Caller)
	}

	for _, err := range []error{d.IdentityErr, d.BalanceErr, d.TransactionsErr} {
		if apperr.Is(err, apperr.KindAuthExpired) {
			return d, err
		}
	}
	return d, nil
}

// callerName имя текущего пользователя: профиль, затем баланс, затем токен
func (s *WalletService) callerName(d *Dashboard) string {
	if d.Identity != nil && strings.TrimSpace(d.Identity.Username) != "" {
		return d.Identity.Username
	}
	if d.Balance != nil && strings.TrimSpace(d.Balance.Username) != "" {
		return d.Balance.Username
	}
	if claims, ok := s.Whoami(); ok {
		return claims.Username
	}
	return ""
}

// Send первая фаза перевода
func (s *WalletService) Send(ctx context.Context, req models.TransferRequest) (transfer.Pending, error) {
	return s.coordinator.Initiate(ctx, req)
}

// Confirm вторая фаза. После успеха баланс перечитывается с сервера.
func (s *WalletService) Confirm(ctx context.Context, transactionID, code string) (*ConfirmResult, error) {
	currency := models.FiatCurrency
	for _, p := range s.coordinator.Pending() {
		if p.TransactionID == strings.TrimSpace(transactionID) {
			currency = p.Currency
			break
		}
	}

	receipt, err := s.coordinator.Confirm(ctx, transactionID, code)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{Receipt: receipt}
	balance, err := s.Balance(ctx, currency)
	if err != nil {
		logger.ForOperation(s.logger, "confirm").Warnf("Failed to refresh balance after transfer: %v", err)
		return result, nil
	}
	result.Balance = balance
	return result, nil
}

// Abandon отказ от незавершенного перевода
func (s *WalletService) Abandon(transactionID string) bool {
	return s.coordinator.Abandon(transactionID)
}

// Pending незавершенные переводы этого процесса
func (s *WalletService) Pending() []transfer.Pending {
	return s.coordinator.Pending()
}

// TransferState состояние перевода
func (s *WalletService) TransferState(transactionID string) transfer.State {
	return s.coordinator.State(transactionID)
}

// transferGateway сетевые вызовы переводов через охрану сессии
type transferGateway struct {
	s *WalletService
}

type transferBody struct {
	ToUsername string      `json:"toUsername"`
	Password   string      `json:"password"`
	Amount     json.Number `json:"amount"`
	Note       string      `json:"note,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
}

type confirmBody struct {
	TransactionID string `json:"transactionId"`
	OTP           string `json:"otp"`
	Symbol        string `json:"symbol,omitempty"`
}

// Initiate реализует transfer.Gateway
func (g *transferGateway) Initiate(ctx context.Context, req models.TransferRequest) (string, error) {
	const op = "transfer.initiate"

	operation := resolver.WalletTransfer
	body := transferBody{
		ToUsername: req.Recipient,
		Password:   req.Password,
		Amount:     json.Number(req.Amount.String()),
		Note:       strings.TrimSpace(req.Note),
	}
	if models.IsCrypto(req.Currency) {
		operation = resolver.CryptoSend
		body.Symbol = models.NormalizeCurrency(req.Currency)
	}

	var txID string
	err := g.s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		raw, err := g.s.resolver.Resolve(ctx, &sess, operation, resolver.Call{Body: body})
		if err != nil {
			return err
		}
		txID = models.ParseReceipt(raw).TransactionID
		return nil
	})
	return txID, err
}

// Confirm реализует transfer.Gateway
func (g *transferGateway) Confirm(ctx context.Context, currency, transactionID, code string) (models.Receipt, error) {
	const op = "transfer.confirm"

	operation := resolver.WalletTransferConfirm
	body := confirmBody{TransactionID: transactionID, OTP: code}
	if models.IsCrypto(currency) {
		operation = resolver.CryptoSendConfirm
		body.Symbol = models.NormalizeCurrency(currency)
	}

	var receipt models.Receipt
	err := g.s.guard.Do(ctx, op, func(ctx context.Context, sess session.Session) error {
		raw, err := g.s.resolver.Resolve(ctx, &sess, operation, resolver.Call{Body: body})
		if err != nil {
			return err
		}
		receipt = models.ParseReceipt(raw)
		return nil
	})
	return receipt, err
}

// IsAuthExpired сообщает, что пользователю нужно войти заново
func IsAuthExpired(err error) bool {
	return apperr.Is(err, apperr.KindAuthExpired)
}
