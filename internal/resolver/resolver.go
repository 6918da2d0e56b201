// Package resolver вызывает одну логическую операцию по упорядоченному списку
// маршрутов и возвращает первый успешный ответ.
package resolver

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/sirupsen/logrus"

	"userpay-client/internal/apperr"
	"userpay-client/internal/cache"
	"userpay-client/internal/client"
	"userpay-client/internal/metrics"
	"userpay-client/internal/session"
)

// Endpoint конкретный маршрут сервера
type Endpoint struct {
	Method string
	Path   string
}

// Key ключ маршрута для кеша и метрик
func (e Endpoint) Key() string {
	return e.Method + " " + e.Path
}

// Operation логическая операция и ее маршруты-кандидаты по порядку
type Operation struct {
	Name       string
	Candidates []Endpoint
}

// Call данные вызова, одинаковые для всех кандидатов
type Call struct {
	Query url.Values
	Body  interface{}
}

// Caller выполняет один HTTP-вызов
type Caller interface {
	Do(ctx context.Context, r client.Request) (json.RawMessage, error)
}

// Resolver перебирает кандидатов операции
type Resolver struct {
	caller  Caller
	memo    *cache.RouteCache
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// New создает резолвер; memo может быть nil
func New(caller Caller, memo *cache.RouteCache, m *metrics.Metrics, logger *logrus.Logger) *Resolver {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Resolver{
		caller:  caller,
		memo:    memo,
		metrics: m,
		logger:  logger,
	}
}

// Resolve выполняет операцию. sess == nil означает вызов без авторизации.
// Транспортные сбои и "маршрут не найден" ведут к следующему кандидату,
// ответ с бизнес-сообщением и отказ в авторизации возвращаются сразу.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, op Operation, call Call) (json.RawMessage, error) {
	candidates := r.order(op)
	if len(candidates) == 0 {
		return nil, apperr.Validation(op.Name, "operation has no routes")
	}

	token := ""
	if sess != nil {
		token = sess.Token
	}

	var last error
	for i, ep := range candidates {
		if i > 0 {
			r.metrics.ResolverFallbacks.WithLabelValues(op.Name).Inc()
			r.logger.WithFields(logrus.Fields{
				"operation": op.Name,
				"route":     ep.Key(),
			}).Info("Falling back to next candidate route")
		}

		raw, err := r.caller.Do(ctx, client.Request{
			Op:     op.Name,
			Method: ep.Method,
			Path:   ep.Path,
			Query:  call.Query,
			Body:   call.Body,
			Token:  token,
		})
		if err == nil {
			r.memo.Forget(ep.Key())
			r.metrics.ResolverAttempts.WithLabelValues(op.Name, ep.Key(), metrics.OutcomeSuccess).Inc()
			return raw, nil
		}

		last = err
		if !client.Retryable(err) {
			r.metrics.ResolverAttempts.WithLabelValues(op.Name, ep.Key(), metrics.OutcomeTerminal).Inc()
			return nil, err
		}

		r.metrics.ResolverAttempts.WithLabelValues(op.Name, ep.Key(), metrics.OutcomeRetryable).Inc()
		if client.RouteMissing(err) {
			r.memo.MarkDead(ep.Key())
		}

		// Отмена вызывающим не повод пробовать другие маршруты
		if ctx.Err() != nil {
			break
		}
	}

	r.logger.WithField("operation", op.Name).Warnf("All candidate routes failed: %v", last)
	return nil, apperr.Wrap(apperr.KindRouteUnavailable, op.Name, last)
}

// order возвращает кандидатов без недавно "мертвых" маршрутов.
// Если отмечены все, пробуем всех: отметка могла устареть раньше TTL.
func (r *Resolver) order(op Operation) []Endpoint {
	live := make([]Endpoint, 0, len(op.Candidates))
	for _, ep := range op.Candidates {
		if r.memo.IsDead(ep.Key()) {
			r.metrics.ResolverAttempts.WithLabelValues(op.Name, ep.Key(), metrics.OutcomeSkipped).Inc()
			continue
		}
		live = append(live, ep)
	}
	if len(live) == 0 {
		return op.Candidates
	}
	return live
}

// WithQuery копия вызова с параметрами запроса
func WithQuery(key, value string) Call {
	return Call{Query: url.Values{key: {value}}}
}
