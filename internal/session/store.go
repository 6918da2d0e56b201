package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Session снимок учетных данных, передается явно в каждый авторизованный вызов
type Session struct {
	Token      string
	Generation uint64
}

// Store единственный владелец токена
type Store struct {
	mu         sync.RWMutex
	storage    TokenStorage
	token      string
	generation uint64
	onSignOut  func()
	logger     *logrus.Logger
}

// NewStore создает хранилище учетных данных поверх постоянного хранилища
func NewStore(storage TokenStorage, logger *logrus.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  logger,
	}
}

// OnSignOut задает действие при выходе: возврат к точке входа без авторизации
func (s *Store) OnSignOut(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSignOut = fn
}

// Restore поднимает сохраненный токен при старте процесса
func (s *Store) Restore(ctx context.Context) error {
	token, err := s.storage.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != "" {
		s.token = token
		s.generation++
		s.logger.Debug("Session restored from token storage")
	}
	return nil
}

// Set сохраняет токен; пустой токен очищает сессию без перехода к точке входа
func (s *Store) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return s.clearLocked(ctx)
	}

	if err := s.storage.Save(ctx, token); err != nil {
		return err
	}
	s.token = token
	s.generation++
	s.logger.Debugf("Session token set (generation %d)", s.generation)
	return nil
}

// Get возвращает текущий токен
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Session возвращает снимок для явной передачи в вызовы
func (s *Store) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return Session{}, false
	}
	return Session{Token: s.token, Generation: s.generation}, true
}

// Clear выходит из сессии и вызывает действие выхода
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.clearLocked(ctx)
	hook := s.onSignOut
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

// Invalidate очищает хранилище, только если сессия sess все еще текущая.
// Возвращает true, если очистка произошла именно в этом вызове.
func (s *Store) Invalidate(ctx context.Context, sess Session) (bool, error) {
	s.mu.Lock()
	if s.token == "" || s.generation != sess.Generation {
		s.mu.Unlock()
		return false, nil
	}
	err := s.clearLocked(ctx)
	hook := s.onSignOut
	s.mu.Unlock()

	s.logger.Warn("Session invalidated after authorization failure")
	if hook != nil {
		hook()
	}
	return true, err
}

func (s *Store) clearLocked(ctx context.Context) error {
	// Память очищаем даже при ошибке хранилища: токен больше не используется
	s.token = ""
	s.generation++
	if err := s.storage.Delete(ctx); err != nil {
		s.logger.Errorf("Failed to delete stored token: %v", err)
		return err
	}
	return nil
}
