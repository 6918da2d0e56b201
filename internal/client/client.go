// Package client выполняет один HTTP-вызов к UserPay API и нормализует ошибки.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/apperr"
)

const maxBodySize = 1 << 20

// Request описывает один вызов
type Request struct {
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Token  string
}

// Client HTTP-клиент с фиксированным таймаутом на вызов
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New создает клиент; timeout ограничивает каждый вызов целиком
func New(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewWithHTTPClient создает клиент поверх готового http.Client
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Do выполняет запрос и возвращает тело успешного ответа
func (c *Client) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apperr.Validation(r.Op, fmt.Sprintf("failed to marshal request: %v", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, apperr.Validation(r.Op, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logCall(r, 0, time.Since(start), err)
		return nil, &apperr.Error{
			Kind:    apperr.KindNetwork,
			Op:      r.Op,
			Message: apperr.DefaultNetworkMessage,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.logCall(r, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindNetwork,
			Op:      r.Op,
			Status:  resp.StatusCode,
			Message: apperr.DefaultNetworkMessage,
			Err:     err,
		}
	}

	if resp.StatusCode >= 400 {
		return nil, classify(r.Op, resp.StatusCode, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

// classify превращает ответ с ошибкой в *apperr.Error
func classify(op string, status int, raw []byte) *apperr.Error {
	message, structured := serverMessage(raw)

	e := &apperr.Error{
		Op:      op,
		Status:  status,
		Message: message,
		Err:     fmt.Errorf("server returned status %d", status),
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = apperr.KindAuthExpired
		if !structured {
			e.Message = "session expired, please log in again"
		}
	case structured:
		e.Kind = apperr.KindRejected
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		e.Kind = apperr.KindRouteUnavailable
		e.Message = apperr.DefaultNetworkMessage
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		e.Kind = apperr.KindNetwork
		e.Message = apperr.DefaultNetworkMessage
	default:
		e.Kind = apperr.KindRejected
		e.Message = apperr.DefaultNetworkMessage
	}

	return e
}

// serverMessage достает {message} или {error} из тела ответа
func serverMessage(raw []byte) (string, bool) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", false
	}

	for _, key := range []string{"message", "error"} {
		v, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// Retryable сообщает, можно ли пробовать следующий маршрут после этой ошибки
func Retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindNetwork, apperr.KindRouteUnavailable:
		return true
	default:
		return false
	}
}

// RouteMissing сообщает, что сервер не знает маршрут
func RouteMissing(err error) bool {
	return apperr.KindOf(err) == apperr.KindRouteUnavailable
}

// logCall логирует вызов по тем же правилам, что и серверный middleware
func (c *Client) logCall(r Request, status int, duration time.Duration, err error) {
	if c.logger == nil {
		return
	}

	entry := c.logger.WithFields(logrus.Fields{
		"operation": r.Op,
		"method":    r.Method,
		"path":      r.Path,
		"status":    status,
		"duration":  duration.String(),
	})

	switch {
	case err != nil:
		entry.Warnf("Request failed: %v", err)
	case status >= 500:
		entry.Warn("Server error")
	case status >= 400:
		entry.Debug("Client error")
	default:
		entry.Debug("Request completed")
	}
}
