package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconcileDepositAndIncomingTransfer(t *testing.T) {
	raw := json.RawMessage(`[
		{"type":"deposit","amount":50},
		{"type":"transfer","amount":20,"fromUser":"alice","toUser":"bob"}
	]`)

	s := New(5, nil).Reconcile(raw, "bob")

	if !s.TotalReceived.Equal(dec("70")) {
		t.Fatalf("Expected totalReceived 70, got %s", s.TotalReceived)
	}
	if !s.TotalSent.IsZero() {
		t.Fatalf("Expected totalSent 0, got %s", s.TotalSent)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(s.Rows))
	}
	if s.Rows[0].Label != "Top-up" {
		t.Fatalf("Expected Top-up label, got %q", s.Rows[0].Label)
	}
	if s.Rows[1].Label != "Received ← alice" {
		t.Fatalf("Expected received label, got %q", s.Rows[1].Label)
	}
	if s.Rows[1].Status != "completed" {
		t.Fatalf("Expected default status completed, got %q", s.Rows[1].Status)
	}
}

func TestReconcileSentNeverCountsAsReceived(t *testing.T) {
	raw := json.RawMessage(`[
		{"type":"transfer","amount":12.5,"fromUser":{"id":1,"username":"alice"},"toUser":{"id":2,"username":"bob"}},
		{"type":"transfer","amount":7.25,"fromUser":"alice","toUser":"carol"}
	]`)

	s := New(5, nil).Reconcile(raw, "alice")

	if !s.TotalSent.Equal(dec("19.75")) {
		t.Fatalf("Expected totalSent 19.75, got %s", s.TotalSent)
	}
	if !s.TotalReceived.IsZero() {
		t.Fatalf("Expected totalReceived 0, got %s", s.TotalReceived)
	}
	if s.Rows[0].Label != "Sent → bob" || s.Rows[0].Direction != DirectionSent {
		t.Fatalf("Unexpected first row %+v", s.Rows[0])
	}
}

func TestReconcileSelfTransferCountsAsSent(t *testing.T) {
	raw := json.RawMessage(`[{"type":"transfer","amount":5,"fromUser":"bob","toUser":"bob"}]`)

	s := New(5, nil).Reconcile(raw, "Bob")
	if !s.TotalSent.Equal(dec("5")) || !s.TotalReceived.IsZero() {
		t.Fatalf("Expected self transfer counted once as sent, got sent=%s received=%s", s.TotalSent, s.TotalReceived)
	}
}

func TestReconcileOnlyMalformedEntries(t *testing.T) {
	inputs := []string{
		`[null, 3, "x", {"type":"deposit"}, {"type":"deposit","amount":"50"}, {"amount":-4}, []]`,
		`{"message":"oops"}`,
		`"not a list"`,
		`null`,
		``,
		`{{{`,
	}

	for _, in := range inputs {
		s := New(5, nil).Reconcile(json.RawMessage(in), "bob")
		if !s.TotalSent.IsZero() || !s.TotalReceived.IsZero() {
			t.Fatalf("Expected zero totals for %q, got sent=%s received=%s", in, s.TotalSent, s.TotalReceived)
		}
		if len(s.Rows) != 0 || !s.Empty() {
			t.Fatalf("Expected empty display for %q, got %d rows", in, len(s.Rows))
		}
	}
}

func TestReconcileAnomalyAndUnknownTypes(t *testing.T) {
	raw := json.RawMessage(`[
		{"type":"transfer","amount":30,"fromUser":"carol","toUser":"dave"},
		{"type":"withdrawal","amount":10},
		{"amount":3},
		{"type":"deposit","amount":1}
	]`)

	s := New(5, nil).Reconcile(raw, "bob")

	if !s.TotalSent.IsZero() {
		t.Fatalf("Expected anomaly excluded from sent, got %s", s.TotalSent)
	}
	if !s.TotalReceived.Equal(dec("1")) {
		t.Fatalf("Expected only deposit received, got %s", s.TotalReceived)
	}
	if len(s.Rows) != 4 {
		t.Fatalf("Expected all 4 rows retained, got %d", len(s.Rows))
	}

	want := []struct {
		label string
		dir   Direction
	}{
		{"Transfer carol → dave", DirectionUnclassified},
		{"withdrawal", DirectionOther},
		{"Transaction", DirectionUnclassified},
		{"Top-up", DirectionTopUp},
	}
	for i, w := range want {
		if s.Rows[i].Label != w.label || s.Rows[i].Direction != w.dir {
			t.Fatalf("Row %d: expected %q/%s, got %q/%s", i, w.label, w.dir, s.Rows[i].Label, s.Rows[i].Direction)
		}
	}
}

func TestReconcileTruncatesRowsButNotTotals(t *testing.T) {
	var items []string
	for i := 1; i <= 8; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d,"type":"deposit","amount":10,"createdAt":"2024-03-0%dT10:00:00Z"}`, i, i))
	}
	raw := json.RawMessage("[" + strings.Join(items, ",") + "]")

	s := New(5, nil).Reconcile(raw, "bob")

	if !s.TotalReceived.Equal(dec("80")) {
		t.Fatalf("Expected totals over full list (80), got %s", s.TotalReceived)
	}
	if len(s.Rows) != 5 {
		t.Fatalf("Expected 5 rows, got %d", len(s.Rows))
	}
	if s.Count != 8 {
		t.Fatalf("Expected count 8, got %d", s.Count)
	}
	if s.Rows[0].ID != "8" || s.Rows[4].ID != "4" {
		t.Fatalf("Expected most recent first (8..4), got %s..%s", s.Rows[0].ID, s.Rows[4].ID)
	}
	if s.Rows[0].DateText != "Mar 8, 2024" {
		t.Fatalf("Expected formatted date, got %q", s.Rows[0].DateText)
	}
}

func TestReconcileUndatedAfterDated(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":"a","type":"deposit","amount":1},
		{"id":"b","type":"deposit","amount":1,"created_at":"2024-01-01 09:00:00"},
		{"id":"c","type":"deposit","amount":1,"createdAt":1717243200000}
	]`)

	s := New(5, nil).Reconcile(raw, "bob")
	got := []string{s.Rows[0].ID, s.Rows[1].ID, s.Rows[2].ID}
	if strings.Join(got, ",") != "c,b,a" {
		t.Fatalf("Expected c,b,a, got %v", got)
	}
	if s.Rows[2].DateText != MissingValue {
		t.Fatalf("Expected missing date placeholder, got %q", s.Rows[2].DateText)
	}
}

func TestReconcileWrappedList(t *testing.T) {
	raw := json.RawMessage(`{"transactions":[{"type":"deposit","amount":2.5}]}`)
	s := New(5, nil).Reconcile(raw, "bob")
	if !s.TotalReceived.Equal(dec("2.5")) {
		t.Fatalf("Expected 2.5 from wrapped list, got %s", s.TotalReceived)
	}
}

func TestParseUserRef(t *testing.T) {
	if Username(ParseUserRef("  alice ")) != "alice" {
		t.Fatal("Expected inline username")
	}
	ref := ParseUserRef(map[string]interface{}{"id": json.Number("9"), "username": "bob"})
	ident, ok := ref.(IdentityRef)
	if !ok || ident.ID != "9" || Username(ref) != "bob" {
		t.Fatalf("Expected identity ref, got %#v", ref)
	}
	if ParseUserRef(42) != nil || ParseUserRef("") != nil || ParseUserRef(map[string]interface{}{}) != nil {
		t.Fatal("Expected nil for unusable refs")
	}
	if Username(nil) != "" {
		t.Fatal("Expected empty username for nil ref")
	}
}

func TestFormatter(t *testing.T) {
	f := NewFormatter("₦")

	if got := f.Amount(dec("120.50")); got != "₦120.50" {
		t.Fatalf("Expected ₦120.50, got %q", got)
	}
	if got := f.Amount(dec("50")); got != "₦50.00" {
		t.Fatalf("Expected ₦50.00, got %q", got)
	}
	if got := f.Amount(dec("1234567.891")); got != "₦1,234,567.89" {
		t.Fatalf("Expected ₦1,234,567.89, got %q", got)
	}
	if got := f.Amount(dec("12345678901234567.89")); got != "₦12,345,678,901,234,567.89" {
		t.Fatalf("Expected exact large amount, got %q", got)
	}
	if got := f.Amount(dec("123456789012345678901.5")); got != "₦123,456,789,012,345,678,901.50" {
		t.Fatalf("Expected exact amount beyond int64, got %q", got)
	}
	if got := f.Amount(dec("-20")); got != "-₦20.00" {
		t.Fatalf("Expected -₦20.00, got %q", got)
	}
	if got := f.AmountIn("BTC", dec("0.0050")); got != "0.005 BTC" {
		t.Fatalf("Expected crypto amount, got %q", got)
	}
}
