package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"userpay-client/internal/apperr"
	"userpay-client/internal/logger"
)

// countingStorage - хранилище в памяти со счетчиком удалений
type countingStorage struct {
	MemoryStorage
	deletes int32
}

func (c *countingStorage) Delete(ctx context.Context) error {
	atomic.AddInt32(&c.deletes, 1)
	return c.MemoryStorage.Delete(ctx)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "7",
		"username": "alice",
		"exp":      exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestStoreSetGetClear(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, logger.Discard())

	signedOut := 0
	store.OnSignOut(func() { signedOut++ })

	if _, ok := store.Get(); ok {
		t.Fatal("Expected no token initially")
	}

	if err := store.Set(ctx, "tok-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	first, _ := store.Session()

	if err := store.Set(ctx, "tok-2"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, ok := store.Session()
	if !ok || second.Token != "tok-2" {
		t.Fatalf("Expected tok-2 session, got %+v", second)
	}
	if second.Generation == first.Generation {
		t.Fatal("Expected new generation after replacing token")
	}
	if saved, _ := storage.Load(ctx); saved != "tok-2" {
		t.Fatalf("Expected tok-2 persisted, got %q", saved)
	}

	// Set с пустым токеном очищает без перехода к точке входа
	if err := store.Set(ctx, ""); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if signedOut != 0 {
		t.Fatal("Did not expect sign-out hook on Set(absent)")
	}

	store.Set(ctx, "tok-3")
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("Expected no token after Clear")
	}
	if signedOut != 1 {
		t.Fatalf("Expected sign-out hook once, got %d", signedOut)
	}
	if saved, _ := storage.Load(ctx); saved != "" {
		t.Fatalf("Expected storage cleared, got %q", saved)
	}
}

func TestStoreRestoreFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "userpay_token")

	first := NewStore(NewFileStorage(path), logger.Discard())
	if err := first.Set(ctx, "persisted-token"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected token file, got %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	// Новый процесс поднимает тот же токен
	second := NewStore(NewFileStorage(path), logger.Discard())
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token, ok := second.Get(); !ok || token != "persisted-token" {
		t.Fatalf("Expected restored token, got %q", token)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Expected token file removed, got %v", err)
	}
	// Повторное удаление не ошибка
	if err := NewFileStorage(path).Delete(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestGuardWithoutTokenSkipsCall(t *testing.T) {
	store := NewStore(NewMemoryStorage(), logger.Discard())
	guard := NewGuard(store, logger.Discard())

	called := false
	err := guard.Do(context.Background(), "balance", func(ctx context.Context, sess Session) error {
		called = true
		return nil
	})

	if called {
		t.Fatal("Expected call to be skipped without token")
	}
	if apperr.KindOf(err) != apperr.KindAuthExpired {
		t.Fatalf("Expected auth_expired, got %v", err)
	}
}

func TestGuardPassesSessionExplicitly(t *testing.T) {
	store := NewStore(NewMemoryStorage(), logger.Discard())
	store.Set(context.Background(), "opaque-token")
	guard := NewGuard(store, logger.Discard())

	var got Session
	err := guard.Do(context.Background(), "profile", func(ctx context.Context, sess Session) error {
		got = sess
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.Token != "opaque-token" {
		t.Fatalf("Expected opaque token passed to call, got %q", got.Token)
	}
}

func TestGuardClearsOnceOnConcurrentDenials(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{}
	store := NewStore(storage, logger.Discard())
	store.Set(ctx, "tok")

	var hooks int32
	store.OnSignOut(func() { atomic.AddInt32(&hooks, 1) })
	guard := NewGuard(store, logger.Discard())

	// Все вызовы должны успеть взять одну и ту же сессию до первой очистки
	var ready sync.WaitGroup
	ready.Add(20)
	start := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = guard.Do(ctx, "transactions", func(ctx context.Context, sess Session) error {
				ready.Done()
				<-start
				return &apperr.Error{Kind: apperr.KindAuthExpired, Status: 401, Message: "Invalid token"}
			})
		}(i)
	}
	ready.Wait()
	close(start)
	wg.Wait()

	if n := atomic.LoadInt32(&storage.deletes); n != 1 {
		t.Fatalf("Expected storage cleared exactly once, got %d", n)
	}
	if n := atomic.LoadInt32(&hooks); n != 1 {
		t.Fatalf("Expected sign-out hook exactly once, got %d", n)
	}
	for _, err := range errs {
		if apperr.KindOf(err) != apperr.KindAuthExpired {
			t.Fatalf("Expected auth_expired for every caller, got %v", err)
		}
	}
	if _, ok := store.Get(); ok {
		t.Fatal("Expected no token after denial")
	}
}

func TestGuardKeepsSessionOnOtherErrors(t *testing.T) {
	store := NewStore(NewMemoryStorage(), logger.Discard())
	store.Set(context.Background(), "tok")
	guard := NewGuard(store, logger.Discard())

	boom := apperr.New(apperr.KindRejected, "topup", "Amount too large")
	err := guard.Do(context.Background(), "topup", func(ctx context.Context, sess Session) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected call error to pass through, got %v", err)
	}
	if _, ok := store.Get(); !ok {
		t.Fatal("Expected session to survive a business error")
	}
}

func TestGuardRejectsExpiredJWTLocally(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), logger.Discard())
	store.Set(ctx, signedToken(t, time.Now().Add(-time.Hour)))
	guard := NewGuard(store, logger.Discard())

	called := false
	err := guard.Do(ctx, "profile", func(ctx context.Context, sess Session) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("Expected no call with an expired token")
	}
	if apperr.KindOf(err) != apperr.KindAuthExpired {
		t.Fatalf("Expected auth_expired, got %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("Expected expired session to be cleared")
	}
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, ok := ParseClaims(signedToken(t, exp))
	if !ok {
		t.Fatal("Expected JWT to parse")
	}
	if claims.Username != "alice" || claims.Subject != "7" {
		t.Fatalf("Unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("Expected exp %v, got %v", exp, claims.ExpiresAt)
	}
	if claims.Expired(time.Now()) {
		t.Fatal("Did not expect token to be expired")
	}

	if _, ok := ParseClaims("not-a-jwt"); ok {
		t.Fatal("Expected opaque token to be reported as non-JWT")
	}
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	storage := NewRedisStorage(addr, os.Getenv("REDIS_PASSWORD"), 0, "userpay_token_test")
	defer storage.Close()

	if err := storage.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	store := NewStore(storage, logger.Discard())
	if err := store.Set(ctx, "redis-token"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token, _ := storage.Load(ctx); token != "redis-token" {
		t.Fatalf("Expected redis-token, got %q", token)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token, _ := storage.Load(ctx); token != "" {
		t.Fatalf("Expected empty after clear, got %q", token)
	}
}
