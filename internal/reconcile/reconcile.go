// Package reconcile сводит сырую историю транзакций в итоги "отправлено/получено"
// относительно текущего пользователя.
package reconcile

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"userpay-client/internal/models"
)

// DefaultLimit число строк в сводке
const DefaultLimit = 5

// Direction направление операции относительно вызывающего
type Direction string

const (
	DirectionSent         Direction = "sent"
	DirectionReceived     Direction = "received"
	DirectionTopUp        Direction = "topup"
	DirectionOther        Direction = "other"
	DirectionUnclassified Direction = "unclassified"
)

// Transaction транзакция после защитного разбора
type Transaction struct {
	ID        string
	Type      string
	Amount    decimal.Decimal
	Status    string
	Note      string
	CreatedAt time.Time
	From      UserRef
	To        UserRef
}

// Row строка для показа
type Row struct {
	ID        string
	Label     string
	Direction Direction
	Amount    decimal.Decimal
	Status    string
	Date      time.Time
	DateText  string
	Note      string
}

// Summary итог сверки; пересчитывается на каждом обновлении
type Summary struct {
	TotalSent     decimal.Decimal
	TotalReceived decimal.Decimal
	Rows          []Row
	Count         int
}

// Empty сообщает, что показывать нечего
func (s Summary) Empty() bool {
	return s.Count == 0
}

// Reconciler сверщик истории
type Reconciler struct {
	limit  int
	format *Formatter
}

// New создает сверщика; limit <= 0 означает DefaultLimit
func New(limit int, format *Formatter) *Reconciler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if format == nil {
		format = NewFormatter("₦")
	}
	return &Reconciler{limit: limit, format: format}
}

// Reconcile никогда не падает: мусор отбрасывается, неясные записи
// становятся строками "unclassified".
func (r *Reconciler) Reconcile(raw json.RawMessage, caller string) Summary {
	txs := ParseTransactions(raw)

	summary := Summary{
		TotalSent:     decimal.Zero,
		TotalReceived: decimal.Zero,
		Count:         len(txs),
	}

	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		row := r.classify(tx, caller)
		switch row.Direction {
		case DirectionSent:
			summary.TotalSent = summary.TotalSent.Add(tx.Amount)
		case DirectionReceived, DirectionTopUp:
			summary.TotalReceived = summary.TotalReceived.Add(tx.Amount)
		}
		rows = append(rows, row)
	}

	// Свежие сверху; без даты - после датированных, в порядке сервера
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Date, rows[j].Date
		if a.IsZero() {
			return false
		}
		return b.IsZero() || a.After(b)
	})

	if len(rows) > r.limit {
		rows = rows[:r.limit]
	}
	summary.Rows = rows

	return summary
}

func (r *Reconciler) classify(tx Transaction, caller string) Row {
	row := Row{
		ID:       tx.ID,
		Amount:   tx.Amount,
		Status:   tx.Status,
		Date:     tx.CreatedAt,
		DateText: r.format.Date(tx.CreatedAt),
		Note:     tx.Note,
	}
	if row.ID == "" {
		row.ID = MissingValue
	}

	me := models.TrimmedLower(caller)

	switch tx.Type {
	case models.TransactionTypeTransfer:
		sender, recipient := Username(tx.From), Username(tx.To)
		switch {
		case me != "" && models.TrimmedLower(sender) == me:
			row.Direction = DirectionSent
			row.Label = "Sent → " + orUnknown(recipient)
		case me != "" && models.TrimmedLower(recipient) == me:
			row.Direction = DirectionReceived
			row.Label = "Received ← " + orUnknown(sender)
		default:
			// Аномалия данных: строка остается, в итоги не идет
			row.Direction = DirectionUnclassified
			row.Label = "Transfer " + orUnknown(sender) + " → " + orUnknown(recipient)
		}
	case models.TransactionTypeDeposit:
		row.Direction = DirectionTopUp
		row.Label = "Top-up"
	case "":
		row.Direction = DirectionUnclassified
		row.Label = "Transaction"
	default:
		row.Direction = DirectionOther
		row.Label = tx.Type
	}

	return row
}

func orUnknown(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}

// ParseTransactions разбирает ответ истории. Не массив - пустая история;
// не объект или без числовой неотрицательной суммы - запись отбрасывается.
func ParseTransactions(raw json.RawMessage) []Transaction {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil
	}

	list, ok := root.([]interface{})
	if !ok {
		// Некоторые ревизии сервера заворачивают список в объект
		if obj, isObj := root.(map[string]interface{}); isObj {
			list, ok = obj["transactions"].([]interface{})
		}
		if !ok {
			return nil
		}
	}

	out := make([]Transaction, 0, len(list))
	for _, item := range list {
		if tx, valid := parseTransaction(item); valid {
			out = append(out, tx)
		}
	}
	return out
}

func parseTransaction(v interface{}) (Transaction, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Transaction{}, false
	}

	num, ok := m["amount"].(json.Number)
	if !ok {
		return Transaction{}, false
	}
	amount, err := decimal.NewFromString(num.String())
	if err != nil || amount.IsNegative() {
		return Transaction{}, false
	}

	tx := Transaction{
		ID:        stringField(m, "id", "_id", "transactionId"),
		Type:      strings.ToLower(stringField(m, "type")),
		Amount:    amount,
		Status:    strings.ToLower(stringField(m, "status")),
		Note:      stringField(m, "note", "memo", "description"),
		CreatedAt: parseTime(firstPresent(m, "createdAt", "created_at", "date")),
		From:      ParseUserRef(firstPresent(m, "fromUser", "from_user")),
		To:        ParseUserRef(firstPresent(m, "toUser", "to_user")),
	}
	if tx.Status == "" {
		tx.Status = models.TransactionStatusCompleted
	}

	return tx, true
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime принимает строку даты или epoch в миллисекундах; иначе нулевое время
func parseTime(v interface{}) time.Time {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case json.Number:
		if ms, err := val.Int64(); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}
