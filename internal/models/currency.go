package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FiatCurrency валюта фиатного кошелька
const FiatCurrency = "NGN"

// cryptoSymbols фиксированный набор поддерживаемых криптовалют
var cryptoSymbols = map[string]bool{
	"BTC":  true,
	"ETH":  true,
	"USDT": true,
	"USDC": true,
}

// NormalizeCurrency приводит код валюты к верхнему регистру; пустой код означает фиат
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return FiatCurrency
	}
	return c
}

// IsCrypto сообщает, идет ли операция через крипто-маршруты
func IsCrypto(currency string) bool {
	return cryptoSymbols[NormalizeCurrency(currency)]
}

// ValidateCurrency проверяет, что валюта поддерживается
func ValidateCurrency(currency string) error {
	c := NormalizeCurrency(currency)
	if c == FiatCurrency || cryptoSymbols[c] {
		return nil
	}
	return fmt.Errorf("unsupported currency: %s. Supported currencies: NGN, BTC, ETH, USDT, USDC", c)
}

// ValidateAmount проверяет, что сумма строго положительная
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}
