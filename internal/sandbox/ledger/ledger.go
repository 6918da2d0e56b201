// Package ledger хранит пользователей, балансы и переводы песочницы в памяти.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Ошибки с текстом для ответа {message}
var (
	ErrEmailTaken          = errors.New("Email already registered")
	ErrInvalidCredentials  = errors.New("Invalid email or password")
	ErrUserNotFound        = errors.New("User not found")
	ErrRecipientNotFound   = errors.New("Recipient not found")
	ErrSelfTransfer        = errors.New("Cannot transfer to yourself")
	ErrInvalidPassword     = errors.New("Invalid password")
	ErrInsufficientBalance = errors.New("Insufficient balance")
	ErrInvalidAmount       = errors.New("Amount must be greater than zero")
	ErrTransferNotFound    = errors.New("Transfer not found")
	ErrInvalidOTP          = errors.New("Invalid or expired OTP")
	ErrOTPExpired          = errors.New("OTP has expired, please start a new transfer")
)

const (
	TypeTransfer = "transfer"
	TypeDeposit  = "deposit"

	StatusCompleted = "completed"
)

// User пользователь песочницы
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Transaction проведенная операция
type Transaction struct {
	ID        string
	Type      string
	Currency  string
	Amount    decimal.Decimal
	Status    string
	Note      string
	FromUser  string
	ToUser    string
	CreatedAt time.Time
}

type pendingTransfer struct {
	id        string
	fromID    int64
	toID      int64
	amount    decimal.Decimal
	currency  string
	note      string
	secret    string
	expiresAt time.Time
}

// Ledger книга песочницы
type Ledger struct {
	mu       sync.Mutex
	users    map[int64]*User
	byEmail  map[string]*User
	byName   map[string]*User
	balances map[int64]map[string]decimal.Decimal
	txs      []Transaction
	pending  map[string]*pendingTransfer
	nextID   int64
	otpTTL   time.Duration
	now      func() time.Time
	logger   *logrus.Logger
}

// New создает пустую книгу
func New(otpTTL time.Duration, logger *logrus.Logger) *Ledger {
	return &Ledger{
		users:    make(map[int64]*User),
		byEmail:  make(map[string]*User),
		byName:   make(map[string]*User),
		balances: make(map[int64]map[string]decimal.Decimal),
		pending:  make(map[string]*pendingTransfer),
		otpTTL:   otpTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// Register создает пользователя; имя берется из локальной части email
func (l *Ledger) Register(email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		l.logger.Errorf("Failed to hash password: %v", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	base := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		base = email[:at]
	}
	username := base
	for i := 2; l.byName[username] != nil; i++ {
		username = fmt.Sprintf("%s%d", base, i)
	}

	l.nextID++
	user := &User{
		ID:           l.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    l.now(),
	}
	l.users[user.ID] = user
	l.byEmail[email] = user
	l.byName[username] = user
	l.balances[user.ID] = make(map[string]decimal.Decimal)

	l.logger.Infof("User registered successfully: %s", username)
	return user, nil
}

// Authenticate проверяет email и пароль
func (l *Ledger) Authenticate(email, password string) (*User, error) {
	l.mu.Lock()
	user, ok := l.byEmail[strings.ToLower(strings.TrimSpace(email))]
	l.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		l.logger.Warnf("Failed authentication attempt for user: %s", user.Username)
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// User пользователь по id
func (l *Ledger) User(id int64) (*User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Balance баланс пользователя в валюте
func (l *Ledger) Balance(userID int64, currency string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, ok := l.balances[userID]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return balances[currency], nil
}

// TopUp зачисляет сумму и возвращает новую запись и баланс
func (l *Ledger) TopUp(userID int64, currency string, amount decimal.Decimal) (Transaction, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return Transaction{}, decimal.Zero, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		return Transaction{}, decimal.Zero, ErrUserNotFound
	}

	balance := l.balances[userID][currency].Add(amount)
	l.balances[userID][currency] = balance

	tx := Transaction{
		ID:        uuid.NewString(),
		Type:      TypeDeposit,
		Currency:  currency,
		Amount:    amount,
		Status:    StatusCompleted,
		ToUser:    user.Username,
		CreatedAt: l.now(),
	}
	l.txs = append(l.txs, tx)

	l.logger.Infof("Deposit completed: UserID=%d, Amount=%s %s", userID, amount, currency)
	return tx, balance, nil
}

// Transactions история пользователя в валюте, свежие сверху
func (l *Ledger) Transactions(userID int64, currency string, limit int) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	var out []Transaction
	for _, tx := range l.txs {
		if tx.Currency != currency {
			continue
		}
		if tx.FromUser == user.Username || tx.ToUser == user.Username {
			out = append(out, tx)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InitiateTransfer первая фаза: проверяет пароль и баланс, выдает transactionId
// и одноразовый код, который уходит владельцу вне основного канала.
func (l *Ledger) InitiateTransfer(userID int64, toUsername, password, currency string, amount decimal.Decimal, note string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sender, ok := l.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(sender.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}

	recipient, ok := l.byName[strings.ToLower(strings.TrimSpace(toUsername))]
	if !ok {
		return "", ErrRecipientNotFound
	}
	if recipient.ID == sender.ID {
		return "", ErrSelfTransfer
	}
	if l.balances[sender.ID][currency].LessThan(amount) {
		return "", ErrInsufficientBalance
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "UserPay",
		AccountName: sender.Email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate otp secret: %w", err)
	}

	p := &pendingTransfer{
		id:        uuid.NewString(),
		fromID:    sender.ID,
		toID:      recipient.ID,
		amount:    amount,
		currency:  currency,
		note:      note,
		secret:    key.Secret(),
		expiresAt: l.now().Add(l.otpTTL),
	}
	l.pending[p.id] = p

	code, err := totp.GenerateCode(p.secret, l.now())
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"transaction_id": p.id,
		"username":       sender.Username,
		"otp":            code,
	}).Info("Transfer OTP issued")

	return p.id, nil
}

// OTP текущий код перевода; доставка кода вне HTTP API
func (l *Ledger) OTP(transactionID string) (string, bool) {
	l.mu.Lock()
	p, ok := l.pending[transactionID]
	l.mu.Unlock()
	if !ok {
		return "", false
	}

	code, err := totp.GenerateCode(p.secret, l.now())
	if err != nil {
		return "", false
	}
	return code, true
}

// ConfirmTransfer вторая фаза. Неверный код оставляет перевод ожидающим.
func (l *Ledger) ConfirmTransfer(userID int64, transactionID, code string) (Transaction, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[transactionID]
	if !ok || p.fromID != userID {
		return Transaction{}, decimal.Zero, ErrTransferNotFound
	}
	if !l.now().Before(p.expiresAt) {
		delete(l.pending, transactionID)
		return Transaction{}, decimal.Zero, ErrOTPExpired
	}
	if !totp.Validate(strings.TrimSpace(code), p.secret) {
		return Transaction{}, decimal.Zero, ErrInvalidOTP
	}

	fromBalance := l.balances[p.fromID][p.currency]
	if fromBalance.LessThan(p.amount) {
		delete(l.pending, transactionID)
		return Transaction{}, decimal.Zero, ErrInsufficientBalance
	}

	fromBalance = fromBalance.Sub(p.amount)
	l.balances[p.fromID][p.currency] = fromBalance
	l.balances[p.toID][p.currency] = l.balances[p.toID][p.currency].Add(p.amount)
	delete(l.pending, transactionID)

	tx := Transaction{
		ID:        p.id,
		Type:      TypeTransfer,
		Currency:  p.currency,
		Amount:    p.amount,
		Status:    StatusCompleted,
		Note:      p.note,
		FromUser:  l.users[p.fromID].Username,
		ToUser:    l.users[p.toID].Username,
		CreatedAt: l.now(),
	}
	l.txs = append(l.txs, tx)

	l.logger.Infof("Transfer completed: %s -> %s, Amount=%s %s", tx.FromUser, tx.ToUser, p.amount, p.currency)
	return tx, fromBalance, nil
}

// UserByName пользователь по имени
func (l *Ledger) UserByName(username string) (*User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.byName[strings.ToLower(strings.TrimSpace(username))]
	return user, ok
}

// UserByEmail пользователь по email
func (l *Ledger) UserByEmail(email string) (*User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return user, ok
}
