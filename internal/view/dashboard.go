// Package view печатает результаты команд в терминал.
package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"userpay-client/internal/apperr"
	"userpay-client/internal/models"
	"userpay-client/internal/reconcile"
	"userpay-client/internal/service"
	"userpay-client/internal/transfer"
)

// Renderer печатает сводки с единым форматированием сумм
type Renderer struct {
	out    io.Writer
	format *reconcile.Formatter
}

// NewRenderer создает рендерер
func NewRenderer(out io.Writer, format *reconcile.Formatter) *Renderer {
	return &Renderer{out: out, format: format}
}

// Dashboard печатает одно обновление главного экрана; ошибка части не
// мешает показать остальные.
func (r *Renderer) Dashboard(d *service.Dashboard) {
	if d.Identity != nil {
		fmt.Fprintf(r.out, "Welcome, %s (%s)\n", orMissing(d.Identity.Username), orMissing(d.Identity.Email))
	} else {
		r.sectionError("Profile", d.IdentityErr)
	}

	if d.Balance != nil {
		fmt.Fprintf(r.out, "Balance: %s\n", r.format.AmountIn(d.Balance.Currency, d.Balance.Balance))
	} else {
		r.sectionError("Balance", d.BalanceErr)
	}

	fmt.Fprintln(r.out)
	if d.TransactionsErr != nil {
		r.sectionError("Recent transactions", d.TransactionsErr)
		return
	}
	r.Summary(d.Summary, models.FiatCurrency)
}

// Summary итоги и последние операции
func (r *Renderer) Summary(s reconcile.Summary, currency string) {
	fmt.Fprintf(r.out, "Total sent:     %s\n", r.format.AmountIn(currency, s.TotalSent))
	fmt.Fprintf(r.out, "Total received: %s\n", r.format.AmountIn(currency, s.TotalReceived))
	fmt.Fprintln(r.out)

	if s.Empty() {
		fmt.Fprintln(r.out, "No transactions yet")
		return
	}

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDESCRIPTION\tAMOUNT\tSTATUS")
	for _, row := range s.Rows {
		amount := r.format.AmountIn(currency, row.Amount)
		switch row.Direction {
		case reconcile.DirectionSent:
			amount = "-" + amount
		case reconcile.DirectionReceived, reconcile.DirectionTopUp:
			amount = "+" + amount
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.DateText, row.Label, amount, orMissing(row.Status))
	}
	tw.Flush()

	if s.Count > len(s.Rows) {
		fmt.Fprintf(r.out, "... %d more\n", s.Count-len(s.Rows))
	}
}

// Balance баланс одной валюты
func (r *Renderer) Balance(b *models.Balance) {
	fmt.Fprintf(r.out, "%s balance: %s\n", b.Currency, r.format.AmountIn(b.Currency, b.Balance))
}

// Receipt квитанция операции
func (r *Renderer) Receipt(currency string, receipt models.Receipt) {
	if receipt.Message != "" {
		fmt.Fprintln(r.out, receipt.Message)
	}
	if receipt.TransactionID != "" {
		fmt.Fprintf(r.out, "Transaction: %s\n", receipt.TransactionID)
	}
	if receipt.Balance != nil {
		fmt.Fprintf(r.out, "New balance: %s\n", r.format.AmountIn(currency, *receipt.Balance))
	}
}

// Pending ожидающий подтверждения перевод
func (r *Renderer) Pending(p transfer.Pending) {
	fmt.Fprintf(r.out, "Transfer of %s to %s initiated (transaction %s).\n",
		r.format.AmountIn(p.Currency, p.Amount), p.Recipient, p.TransactionID)
}

// Error сообщение об ошибке для пользователя
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.out, "Error: %s\n", apperr.Message(err))
	if apperr.Is(err, apperr.KindAuthExpired) {
		fmt.Fprintln(r.out, "Run `userpay login` to sign in.")
	}
}

func (r *Renderer) sectionError(section string, err error) {
	msg := "unavailable"
	if err != nil {
		msg = apperr.Message(err)
	}
	fmt.Fprintf(r.out, "%s: %s\n", section, msg)
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return reconcile.MissingValue
	}
	return s
}
