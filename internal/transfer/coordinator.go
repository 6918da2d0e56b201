// Package transfer ведет двухфазный перевод: initiate выдает transactionId,
// confirm с одноразовым кодом его завершает.
package transfer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/apperr"
	"userpay-client/internal/metrics"
	"userpay-client/internal/models"
)

// State состояние перевода
type State string

const (
	StateIdle      State = "idle"
	StateInitiated State = "initiated"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// Pending перевод между фазами; живет только в памяти процесса
type Pending struct {
	TransactionID string
	Currency      string
	Amount        decimal.Decimal
	Recipient     string
	State         State
	InitiatedAt   time.Time
	LastError     string
}

// Gateway сетевые вызовы обеих фаз
type Gateway interface {
	Initiate(ctx context.Context, req models.TransferRequest) (string, error)
	Confirm(ctx context.Context, currency, transactionID, code string) (models.Receipt, error)
}

// Confirmed событие успешного подтверждения
type Confirmed struct {
	TransactionID string
	Currency      string
	Amount        decimal.Decimal
	Recipient     string
	ConfirmedAt   time.Time
}

// Notifier получает подтвержденные переводы
type Notifier interface {
	TransferConfirmed(ctx context.Context, event Confirmed) error
}

// Coordinator машина состояний переводов, по одной записи на transactionId
type Coordinator struct {
	mu       sync.Mutex
	pending  map[string]*Pending
	inflight map[string]bool
	gateway  Gateway
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCoordinator создает координатор; notifier и m могут быть nil
func NewCoordinator(gateway Gateway, notifier Notifier, m *metrics.Metrics, logger *logrus.Logger) *Coordinator {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Coordinator{
		pending:  make(map[string]*Pending),
		inflight: make(map[string]bool),
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate локальная проверка запроса; до сети не доходит
func Validate(req models.TransferRequest) error {
	const op = "transfer.initiate"

	if strings.TrimSpace(req.Recipient) == "" {
		return apperr.Validation(op, "recipient username is required")
	}
	if err := models.ValidateAmount(req.Amount); err != nil {
		return apperr.Validation(op, err.Error())
	}
	if req.Password == "" {
		return apperr.Validation(op, "password is required")
	}
	if err := models.ValidateCurrency(req.Currency); err != nil {
		return apperr.Validation(op, err.Error())
	}
	return nil
}

// Initiate первая фаза. При успехе перевод переходит в Initiated.
func (c *Coordinator) Initiate(ctx context.Context, req models.TransferRequest) (Pending, error) {
	const op = "transfer.initiate"

	if err := Validate(req); err != nil {
		return Pending{}, err
	}
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Currency = models.NormalizeCurrency(req.Currency)

	txID, err := c.gateway.Initiate(ctx, req)
	if err != nil {
		return Pending{}, denied(op, err)
	}
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return Pending{}, apperr.New(apperr.KindTransferDenied, op, "server did not return a transaction id")
	}

	p := &Pending{
		TransactionID: txID,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Recipient:     req.Recipient,
		State:         StateInitiated,
		InitiatedAt:   c.now(),
	}

	c.mu.Lock()
	c.pending[txID] = p
	snapshot := *p
	c.mu.Unlock()

	c.metrics.TransferStates.WithLabelValues(req.Currency, string(StateInitiated)).Inc()
	c.logger.WithFields(logrus.Fields{
		"transaction_id": txID,
		"currency":       req.Currency,
		"recipient":      req.Recipient,
	}).Info("Transfer initiated, awaiting confirmation code")

	return snapshot, nil
}

// Confirm вторая фаза. Разрешена только для переводов, начатых этим
// координатором и находящихся в Initiated или Failed. Повтор после Failed
// выполняется только по явному вызову.
func (c *Coordinator) Confirm(ctx context.Context, transactionID, code string) (models.Receipt, error) {
	const op = "transfer.confirm"

	transactionID = strings.TrimSpace(transactionID)
	code = strings.TrimSpace(code)

	c.mu.Lock()
	p, ok := c.pending[transactionID]
	if !ok {
		c.mu.Unlock()
		return models.Receipt{}, apperr.Validation(op, "unknown transaction id, initiate the transfer first")
	}
	switch p.State {
	case StateConfirmed:
		c.mu.Unlock()
		return models.Receipt{}, apperr.Validation(op, "transfer is already confirmed")
	case StateAbandoned:
		c.mu.Unlock()
		return models.Receipt{}, apperr.Validation(op, "transfer was abandoned, start a new one")
	}
	if code == "" {
		c.mu.Unlock()
		return models.Receipt{}, apperr.Validation(op, "confirmation code is required")
	}
	// один confirm на перевод одновременно
	if c.inflight[transactionID] {
		c.mu.Unlock()
		return models.Receipt{}, apperr.Validation(op, "confirmation is already in progress")
	}
	c.inflight[transactionID] = true
	currency := p.Currency
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, transactionID)
		c.mu.Unlock()
	}()

	receipt, err := c.gateway.Confirm(ctx, currency, transactionID, code)
	if err != nil {
		next := StateFailed
		if apperr.Is(err, apperr.KindAuthExpired) {
			next = StateAbandoned
		}
		c.transition(transactionID, next, apperr.Message(err))
		return models.Receipt{}, denied(op, err)
	}

	event, ok := c.transition(transactionID, StateConfirmed, "")
	if ok && c.notifier != nil {
		if nerr := c.notifier.TransferConfirmed(ctx, event); nerr != nil {
			c.logger.WithField("transaction_id", transactionID).Warnf("Failed to publish transfer event: %v", nerr)
		}
	}

	return receipt, nil
}

// Abandon отказ от перевода; дальнейший confirm отклоняется локально
func (c *Coordinator) Abandon(transactionID string) bool {
	c.mu.Lock()
	p, ok := c.pending[strings.TrimSpace(transactionID)]
	if !ok || p.State == StateConfirmed || p.State == StateAbandoned {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	_, done := c.transition(transactionID, StateAbandoned, "abandoned by user")
	return done
}

// State текущее состояние; незнакомый id - Idle
func (c *Coordinator) State(transactionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[strings.TrimSpace(transactionID)]; ok {
		return p.State
	}
	return StateIdle
}

// Pending переводы, ожидающие подтверждения (Initiated или Failed)
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		if p.State == StateInitiated || p.State == StateFailed {
			out = append(out, *p)
		}
	}
	return out
}

// transition меняет состояние под мьютексом. Переход из конечного
// состояния не выполняется.
func (c *Coordinator) transition(transactionID string, next State, reason string) (Confirmed, bool) {
	transactionID = strings.TrimSpace(transactionID)

	c.mu.Lock()
	p, ok := c.pending[transactionID]
	if !ok || p.State == StateConfirmed || p.State == StateAbandoned {
		c.mu.Unlock()
		return Confirmed{}, false
	}
	p.State = next
	p.LastError = reason
	event := Confirmed{
		TransactionID: p.TransactionID,
		Currency:      p.Currency,
		Amount:        p.Amount,
		Recipient:     p.Recipient,
		ConfirmedAt:   c.now(),
	}
	c.mu.Unlock()

	c.metrics.TransferStates.WithLabelValues(event.Currency, string(next)).Inc()

	entry := c.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"state":          next,
	})
	if next == StateConfirmed {
		entry.Info("Transfer confirmed")
	} else {
		entry.Warnf("Transfer moved to %s: %s", next, reason)
	}

	return event, true
}

// denied переводит ответ сервера в TransferDenied. Отказ авторизации и
// сбой маршрутов сохраняют свой вид.
func denied(op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindAuthExpired, apperr.KindRouteUnavailable, apperr.KindNetwork, apperr.KindValidation:
		return err
	}
	return apperr.Wrap(apperr.KindTransferDenied, op, err)
}
