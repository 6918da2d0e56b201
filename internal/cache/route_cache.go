package cache

import (
	"sync"
	"time"
)

// RouteCache помнит маршруты, на которые сервер ответил "route not found"
type RouteCache struct {
	dead map[string]time.Time
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
}

// NewRouteCache создает новый кеш; ttl <= 0 отключает запоминание
func NewRouteCache(ttl time.Duration) *RouteCache {
	return &RouteCache{
		dead: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// MarkDead запоминает маршрут как отсутствующий на сервере
func (c *RouteCache) MarkDead(route string) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dead[route] = c.now()
}

// IsDead сообщает, отмечен ли маршрут и не истек ли TTL отметки
func (c *RouteCache) IsDead(route string) bool {
	if c == nil || c.ttl <= 0 {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	markedAt, exists := c.dead[route]
	if !exists {
		return false
	}
	return c.now().Sub(markedAt) <= c.ttl
}

// Forget снимает отметку, например после успешного ответа маршрута
func (c *RouteCache) Forget(route string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.dead, route)
}

// Clear очищает кеш
func (c *RouteCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dead = make(map[string]time.Time)
}

// Len количество маршрутов с неистекшей отметкой
func (c *RouteCache) Len() int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, markedAt := range c.dead {
		if c.now().Sub(markedAt) <= c.ttl {
			n++
		}
	}
	return n
}
