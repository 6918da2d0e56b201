package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"userpay-client/internal/apperr"
	"userpay-client/internal/cache"
	"userpay-client/internal/client"
	"userpay-client/internal/logger"
	"userpay-client/internal/metrics"
	"userpay-client/internal/models"
	"userpay-client/internal/reconcile"
	"userpay-client/internal/resolver"
	"userpay-client/internal/sandbox"
	"userpay-client/internal/session"
	"userpay-client/internal/transfer"
)

type harness struct {
	server  *sandbox.Server
	http    *httptest.Server
	service *WalletService
	store   *session.Store
	metrics *metrics.Metrics
	events  *eventSink
}

type eventSink struct {
	mu     sync.Mutex
	events []transfer.Confirmed
}

func (s *eventSink) TransferConfirmed(ctx context.Context, e transfer.Confirmed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *eventSink) snapshot() []transfer.Confirmed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transfer.Confirmed(nil), s.events...)
}

func newHarness(t *testing.T, legacy bool) *harness {
	t.Helper()

	log := logger.Discard()
	sb := sandbox.New(sandbox.Options{
		GinMode:       gin.TestMode,
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
		OTPTTL:        5 * time.Minute,
		LegacyRoutes:  legacy,
	}, nil, log)
	srv := httptest.NewServer(sb.Router)
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	store := session.NewStore(session.NewMemoryStorage(), log)
	res := resolver.New(client.NewWithHTTPClient(srv.URL, srv.Client(), log), cache.NewRouteCache(time.Minute), m, log)
	events := &eventSink{}
	svc := NewWalletService(store, res, reconcile.New(5, reconcile.NewFormatter("₦")), events, m, 50, log)

	return &harness{server: sb, http: srv, service: svc, store: store, metrics: m, events: events}
}

func (h *harness) signUp(t *testing.T, email string) {
	t.Helper()
	if _, err := h.service.Register(context.Background(), email, "password1"); err != nil {
		t.Fatalf("Register %s failed: %v", email, err)
	}
}

func TestLoginThenBalance(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.signUp(t, "alice@example.com")

	result, err := h.service.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.User == nil || result.User.Username != "alice" {
		t.Fatalf("Expected user alice in login result, got %+v", result.User)
	}
	if token, ok := h.store.Get(); !ok || token != result.Token {
		t.Fatal("Expected token stored after login")
	}

	if _, err := h.service.TopUp(ctx, "", decimal.RequireFromString("120.50")); err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}

	balance, err := h.service.Balance(ctx, "")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Balance.Equal(decimal.RequireFromString("120.5")) {
		t.Fatalf("Expected balance 120.50, got %s", balance.Balance)
	}
	if got := reconcile.NewFormatter("₦").Amount(balance.Balance); got != "₦120.50" {
		t.Fatalf("Expected ₦120.50, got %q", got)
	}

	claims, ok := h.service.Whoami()
	if !ok || claims.Username != "alice" {
		t.Fatalf("Expected whoami alice, got %+v", claims)
	}
}

func TestLoginWrongPasswordKeepsStoreEmpty(t *testing.T) {
	h := newHarness(t, false)
	h.signUp(t, "alice@example.com")

	_, err := h.service.Login(context.Background(), "alice@example.com", "wrong-pass")
	if apperr.KindOf(err) != apperr.KindRejected || apperr.Message(err) != "Invalid email or password" {
		t.Fatalf("Expected server message, got %v", err)
	}
	if _, ok := h.store.Get(); ok {
		t.Fatal("Expected no token stored")
	}
}

func TestUnauthenticatedCallsSkipNetwork(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.service.Balance(context.Background(), "")
	if apperr.KindOf(err) != apperr.KindAuthExpired {
		t.Fatalf("Expected auth_expired, got %v", err)
	}
	if got := testutil.CollectAndCount(h.metrics.ResolverAttempts); got != 0 {
		t.Fatalf("Expected no resolver attempts, got %d", got)
	}
}

func TestRejectedTokenClearsSession(t *testing.T) {
	h := newHarness(t, false)
	if err := h.store.Set(context.Background(), "opaque-token-the-server-rejects"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := h.service.Profile(context.Background())
	if !IsAuthExpired(err) {
		t.Fatalf("Expected auth_expired, got %v", err)
	}
	if _, ok := h.store.Get(); ok {
		t.Fatal("Expected session cleared after 401")
	}
}

func TestFallbackToLegacyLayout(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.signUp(t, "carol@example.com")

	if _, err := h.service.Login(ctx, "carol@example.com", "password1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.service.Balance(ctx, ""); err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if got := testutil.ToFloat64(h.metrics.ResolverFallbacks.WithLabelValues("login")); got != 1 {
		t.Fatalf("Expected login fallback counted, got %v", got)
	}

	// Второй вызов пропускает запомненный мертвый маршрут
	if _, err := h.service.Balance(ctx, ""); err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if got := testutil.ToFloat64(h.metrics.ResolverAttempts.WithLabelValues("wallet_balance", "GET /api/wallet/balance", "skipped")); got != 1 {
		t.Fatalf("Expected dead route skipped once, got %v", got)
	}
}

func TestSendConfirmAndDashboard(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.signUp(t, "alice@example.com")
	h.signUp(t, "bob@example.com")

	if _, err := h.service.Login(ctx, "alice@example.com", "password1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.service.TopUp(ctx, "NGN", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}

	pending, err := h.service.Send(ctx, models.TransferRequest{
		Recipient: "bob",
		Amount:    decimal.RequireFromString("35.50"),
		Password:  "password1",
		Note:      "lunch",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_, err = h.service.Confirm(ctx, pending.TransactionID, "000000x")
	if apperr.KindOf(err) != apperr.KindTransferDenied {
		t.Fatalf("Expected transfer_denied for bad code, got %v", err)
	}
	if h.service.TransferState(pending.TransactionID) != transfer.StateFailed {
		t.Fatal("Expected failed state after bad code")
	}

	otp, ok := h.server.OTP(pending.TransactionID)
	if !ok {
		t.Fatal("Expected sandbox OTP")
	}
	result, err := h.service.Confirm(ctx, pending.TransactionID, otp)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if result.Balance == nil || !result.Balance.Balance.Equal(decimal.RequireFromString("64.5")) {
		t.Fatalf("Expected refreshed balance 64.50, got %+v", result.Balance)
	}
	if events := h.events.snapshot(); len(events) != 1 || events[0].Recipient != "bob" {
		t.Fatalf("Expected one confirmed event for bob, got %+v", events)
	}

	d, err := h.service.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if d.IdentityErr != nil || d.BalanceErr != nil || d.TransactionsErr != nil {
		t.Fatalf("Expected no section errors, got %v %v %v", d.IdentityErr, d.BalanceErr, d.TransactionsErr)
	}
	if d.Caller != "alice" {
		t.Fatalf("Expected caller alice, got %q", d.Caller)
	}
	if !d.Summary.TotalSent.Equal(decimal.RequireFromString("35.5")) {
		t.Fatalf("Expected totalSent 35.50, got %s", d.Summary.TotalSent)
	}
	if !d.Summary.TotalReceived.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected totalReceived 100, got %s", d.Summary.TotalReceived)
	}
	if d.Summary.Count != 2 {
		t.Fatalf("Expected 2 transactions, got %d", d.Summary.Count)
	}
}

func TestCryptoSendShowsNestedParticipants(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.signUp(t, "alice@example.com")
	h.signUp(t, "bob@example.com")

	if _, err := h.service.Login(ctx, "alice@example.com", "password1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.service.TopUp(ctx, "BTC", decimal.RequireFromString("1")); err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}

	pending, err := h.service.Send(ctx, models.TransferRequest{
		Recipient: "bob",
		Amount:    decimal.RequireFromString("0.25"),
		Password:  "password1",
		Currency:  "btc",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	otp, _ := h.server.OTP(pending.TransactionID)
	if _, err := h.service.Confirm(ctx, pending.TransactionID, otp); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	summary, err := h.service.Summary(ctx, "BTC")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if !summary.TotalSent.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("Expected 0.25 BTC sent, got %s", summary.TotalSent)
	}

	balance, err := h.service.Balance(ctx, "BTC")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Balance.Equal(decimal.RequireFromString("0.75")) || balance.Currency != "BTC" {
		t.Fatalf("Expected 0.75 BTC, got %s %s", balance.Balance, balance.Currency)
	}
}

func TestLogoutAbandonsPendingTransfers(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.signUp(t, "alice@example.com")
	h.signUp(t, "bob@example.com")
	h.service.Login(ctx, "alice@example.com", "password1")
	h.service.TopUp(ctx, "", decimal.NewFromInt(10))

	pending, err := h.service.Send(ctx, models.TransferRequest{Recipient: "bob", Amount: decimal.NewFromInt(1), Password: "password1"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := h.service.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if h.service.TransferState(pending.TransactionID) != transfer.StateAbandoned {
		t.Fatal("Expected pending transfer abandoned on logout")
	}
	if _, ok := h.store.Get(); ok {
		t.Fatal("Expected session cleared on logout")
	}
}

// newFixedService сервис поверх сервера с заранее заданными ответами по пути
func newFixedService(t *testing.T, bodies map[string]string) (*WalletService, *session.Store) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	log := logger.Discard()
	m := metrics.New(prometheus.NewRegistry())
	store := session.NewStore(session.NewMemoryStorage(), log)
	res := resolver.New(client.NewWithHTTPClient(srv.URL, srv.Client(), log), cache.NewRouteCache(time.Minute), m, log)
	return NewWalletService(store, res, reconcile.New(5, nil), nil, m, 50, log), store
}

func TestLoginKeepsTokenWhenUserIsOddShaped(t *testing.T) {
	cases := map[string]string{
		"string user":   `{"token":"abc","user":"bob"}`,
		"empty balance": `{"token":"abc","user":{"username":"bob","balance":""}}`,
		"object id":     `{"token":"abc","user":{"id":{"$oid":"65f"},"username":"bob"}}`,
		"no user":       `{"token":"abc"}`,
	}

	for name, body := range cases {
		svc, store := newFixedService(t, map[string]string{"/auth/login": body})

		result, err := svc.Login(context.Background(), "bob@example.com", "password1")
		if err != nil {
			t.Fatalf("%s: Expected login to succeed, got %v", name, err)
		}
		if token, ok := store.Get(); !ok || token != "abc" {
			t.Fatalf("%s: Expected token abc stored, got %q", name, token)
		}
		if result.User != nil && result.User.Username != "bob" {
			t.Fatalf("%s: Expected user bob or none, got %+v", name, result.User)
		}
	}
}

func TestLoginWithoutTokenFails(t *testing.T) {
	svc, store := newFixedService(t, map[string]string{"/auth/login": `{"user":{"username":"bob"}}`})

	if _, err := svc.Login(context.Background(), "bob@example.com", "password1"); err == nil {
		t.Fatal("Expected error for missing token")
	}
	if _, ok := store.Get(); ok {
		t.Fatal("Expected store to stay empty")
	}
}

func TestProfileIgnoresOddBalance(t *testing.T) {
	svc, store := newFixedService(t, map[string]string{"/auth/profile": `{"username":"bob","email":"bob@example.com","balance":""}`})
	if err := store.Set(context.Background(), "opaque-token"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	identity, err := svc.Profile(context.Background())
	if err != nil {
		t.Fatalf("Expected profile, got %v", err)
	}
	if identity.Username != "bob" {
		t.Fatalf("Expected username bob, got %q", identity.Username)
	}
}
