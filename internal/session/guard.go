package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"userpay-client/internal/apperr"
)

// Guard оборачивает каждый авторизованный вызов
type Guard struct {
	store  *Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewGuard создает охранника сессии
func NewGuard(store *Store, logger *logrus.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Do выполняет fn с текущей сессией. Без токена сеть не трогается.
// Отказ в авторизации (401/403) очищает хранилище один раз на сессию.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context, sess Session) error) error {
	sess, ok := g.store.Session()
	if !ok {
		return apperr.New(apperr.KindAuthExpired, op, "please log in to continue")
	}

	if claims, ok := ParseClaims(sess.Token); ok && claims.Expired(g.now()) {
		g.logger.WithField("operation", op).Info("Stored token has expired")
		if _, err := g.store.Invalidate(ctx, sess); err != nil {
			g.logger.Warnf("Failed to clear expired session: %v", err)
		}
		return apperr.New(apperr.KindAuthExpired, op, "session expired, please log in again")
	}

	err := fn(ctx, sess)
	if err == nil || !apperr.Is(err, apperr.KindAuthExpired) {
		return err
	}

	cleared, clearErr := g.store.Invalidate(ctx, sess)
	if clearErr != nil {
		g.logger.Warnf("Failed to clear session: %v", clearErr)
	}
	g.logger.WithFields(logrus.Fields{
		"operation": op,
		"cleared":   cleared,
	}).Warn("Authorization denied by server")

	if apperr.KindOf(err) == apperr.KindAuthExpired {
		return err
	}
	return apperr.Wrap(apperr.KindAuthExpired, op, err)
}
