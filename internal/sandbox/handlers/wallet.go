package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/models"
	"userpay-client/internal/sandbox/ledger"
	"userpay-client/internal/sandbox/middleware"
)

// WalletHandler обработчик кошелька. Один и тот же обработчик обслуживает
// фиатные маршруты и крипто-маршруты с параметром symbol.
type WalletHandler struct {
	ledger *ledger.Ledger
	crypto bool
	logger *logrus.Logger
}

// NewWalletHandler создает обработчик фиатного кошелька
func NewWalletHandler(l *ledger.Ledger, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{ledger: l, logger: logger}
}

// NewCryptoHandler создает обработчик крипто-кошелька
func NewCryptoHandler(l *ledger.Ledger, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{ledger: l, crypto: true, logger: logger}
}

// TopUpRequest запрос на пополнение
type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Symbol string          `json:"symbol"`
}

// TransferRequest запрос на перевод (фаза 1)
type TransferRequest struct {
	ToUsername string          `json:"toUsername" binding:"required"`
	Password   string          `json:"password" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
	Symbol     string          `json:"symbol"`
}

// ConfirmRequest запрос на подтверждение (фаза 2)
type ConfirmRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	OTP           string `json:"otp" binding:"required"`
	Symbol        string `json:"symbol"`
}

// GetBalance возвращает баланс пользователя
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	currency, ok := h.currency(c, c.Query("symbol"))
	if !ok {
		return
	}

	user, err := h.ledger.User(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	balance, _ := h.ledger.Balance(userID, currency)

	resp := gin.H{"balance": number(balance), "username": user.Username}
	if h.crypto {
		resp["symbol"] = currency
	}
	c.JSON(http.StatusOK, resp)
}

// TopUp пополняет счет пользователя
func (h *WalletHandler) TopUp(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	currency, ok := h.currency(c, req.Symbol)
	if !ok {
		return
	}

	tx, balance, err := h.ledger.TopUp(userID, currency, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Account topped up successfully",
		"transactionId": tx.ID,
		"balance":       number(balance),
	})
}

// GetTransactions возвращает историю операций
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	currency, ok := h.currency(c, c.Query("symbol"))
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	txs, err := h.ledger.Transactions(userID, currency, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, h.transaction(tx))
	}
	c.JSON(http.StatusOK, out)
}

// Transfer начинает перевод и выдает transactionId
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	currency, ok := h.currency(c, req.Symbol)
	if !ok {
		return
	}

	txID, err := h.ledger.InitiateTransfer(userID, req.ToUsername, req.Password, currency, req.Amount, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "OTP sent to your email",
		"transactionId": txID,
	})
}

// ConfirmTransfer завершает перевод по коду
func (h *WalletHandler) ConfirmTransfer(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	tx, balance, err := h.ledger.ConfirmTransfer(userID, req.TransactionID, req.OTP)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Transfer completed successfully",
		"transactionId": tx.ID,
		"balance":       number(balance),
	})
}

func (h *WalletHandler) userID(c *gin.Context) (int64, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// currency фиатный обработчик всегда работает в NGN, крипто требует symbol
func (h *WalletHandler) currency(c *gin.Context, symbol string) (string, bool) {
	if !h.crypto {
		return models.FiatCurrency, true
	}
	if symbol == "" || !models.IsCrypto(symbol) {
		badRequest(c, "A supported crypto symbol is required (BTC, ETH, USDT, USDC)")
		return "", false
	}
	return models.NormalizeCurrency(symbol), true
}

// transaction строка истории. Крипто-история отдает участников объектами профиля.
func (h *WalletHandler) transaction(tx ledger.Transaction) gin.H {
	row := gin.H{
		"id":        tx.ID,
		"type":      tx.Type,
		"amount":    number(tx.Amount),
		"status":    tx.Status,
		"createdAt": tx.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if tx.Note != "" {
		row["note"] = tx.Note
	}
	if tx.Type != ledger.TypeTransfer {
		return row
	}

	if h.crypto {
		row["fromUser"] = h.participant(tx.FromUser)
		row["toUser"] = h.participant(tx.ToUser)
	} else {
		row["fromUser"] = tx.FromUser
		row["toUser"] = tx.ToUser
	}
	return row
}

func (h *WalletHandler) participant(username string) gin.H {
	ref := gin.H{"username": username}
	if user, ok := h.ledger.UserByName(username); ok {
		ref["id"] = user.ID
	}
	return ref
}

func (h *WalletHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrTransferNotFound), errors.Is(err, ledger.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrRecipientNotFound),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrInvalidPassword),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidOTP),
		errors.Is(err, ledger.ErrOTPExpired):
		badRequest(c, err.Error())
	default:
		h.logger.Errorf("Wallet operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// number сумма числом JSON, а не строкой
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
