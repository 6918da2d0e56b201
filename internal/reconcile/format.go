package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"userpay-client/internal/models"
)

// MissingValue подставляется вместо отсутствующего поля
const MissingValue = "-"

const dateLayout = "Jan 2, 2006"

// Formatter форматирует суммы и даты для показа
type Formatter struct {
	symbol  string
	printer *message.Printer
}

// NewFormatter создает форматтер с символом фиатной валюты
func NewFormatter(symbol string) *Formatter {
	return &Formatter{
		symbol:  symbol,
		printer: message.NewPrinter(language.English),
	}
}

// Amount сумма в фиате с двумя знаками: ₦1,234.50
func (f *Formatter) Amount(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + f.symbol + f.group(whole) + "." + frac
}

// group расставляет разделители разрядов в целой части без потери точности
func (f *Formatter) group(whole string) string {
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		return f.printer.Sprint(number.Decimal(n))
	}

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// AmountIn сумма в указанной валюте; крипта показывается кодом, без округления до копеек
func (f *Formatter) AmountIn(currency string, d decimal.Decimal) string {
	if !models.IsCrypto(currency) {
		return f.Amount(d)
	}
	return d.String() + " " + models.NormalizeCurrency(currency)
}

// Date дата операции или заглушка
func (f *Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return MissingValue
	}
	return t.Format(dateLayout)
}
