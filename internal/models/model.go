package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Identity снимок профиля пользователя, живет один цикл обновления
type Identity struct {
	ID       FlexibleID      `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Balance  decimal.Decimal `json:"balance"`
}

// Balance ответ эндпоинта баланса
type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	Username string          `json:"username"`
	Currency string          `json:"-"`
}

// TransferRequest запрос на перевод, на клиенте не сохраняется
type TransferRequest struct {
	Recipient string
	Amount    decimal.Decimal
	Password  string
	Note      string
	Currency  string
}

// Receipt квитанция сервера; сервер присылает разные формы, поэтому разбор мягкий
type Receipt struct {
	Message       string           `json:"message"`
	TransactionID string           `json:"transactionId"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	Raw           json.RawMessage  `json:"-"`
}

// Типы транзакций
const (
	TransactionTypeTransfer = "transfer"
	TransactionTypeDeposit  = "deposit"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// FlexibleID принимает идентификатор и строкой, и числом
type FlexibleID string

// UnmarshalJSON реализует json.Unmarshaler
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string {
	return string(id)
}

// ParseReceipt разбирает квитанцию; неизвестная форма не считается ошибкой
func ParseReceipt(raw json.RawMessage) Receipt {
	receipt := Receipt{Raw: raw}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return receipt
	}

	if v, ok := fields["message"]; ok {
		_ = json.Unmarshal(v, &receipt.Message)
	}
	for _, key := range []string{"transactionId", "transaction_id", "id"} {
		if v, ok := fields[key]; ok {
			var id FlexibleID
			if err := json.Unmarshal(v, &id); err == nil && id != "" {
				receipt.TransactionID = id.String()
				break
			}
		}
	}
	for _, key := range []string{"balance", "newBalance", "new_balance"} {
		if v, ok := fields[key]; ok {
			var d decimal.Decimal
			if err := json.Unmarshal(v, &d); err == nil {
				receipt.Balance = &d
				break
			}
		}
	}

	return receipt
}

// TrimmedLower нормализует имя пользователя для сравнений
func TrimmedLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseIdentity разбирает профиль по полям; поле неожиданной формы
// пропускается и не скрывает остальные. ok=false, если это не объект.
func ParseIdentity(raw json.RawMessage) (Identity, bool) {
	var identity Identity

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return identity, false
	}

	if v, ok := fields["id"]; ok {
		_ = json.Unmarshal(v, &identity.ID)
	}
	if identity.ID == "" {
		if v, ok := fields["_id"]; ok {
			_ = json.Unmarshal(v, &identity.ID)
		}
	}
	if v, ok := fields["username"]; ok {
		_ = json.Unmarshal(v, &identity.Username)
	}
	if v, ok := fields["email"]; ok {
		_ = json.Unmarshal(v, &identity.Email)
	}
	if v, ok := fields["balance"]; ok {
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err == nil {
			identity.Balance = d
		}
	}

	return identity, true
}
