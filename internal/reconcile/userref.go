package reconcile

import (
	"encoding/json"
	"strings"
)

// UserRef ссылка на участника перевода. Сервер присылает ее то строкой
// с именем, то вложенным объектом профиля.
type UserRef interface {
	username() string
}

// InlineRef участник, пришедший голой строкой
type InlineRef struct {
	Username string
}

// IdentityRef участник, пришедший объектом профиля
type IdentityRef struct {
	ID       string
	Username string
}

func (r InlineRef) username() string   { return r.Username }
func (r IdentityRef) username() string { return r.Username }

// Username единая нормализация ссылки в имя пользователя
func Username(ref UserRef) string {
	if ref == nil {
		return ""
	}
	return strings.TrimSpace(ref.username())
}

// ParseUserRef разбирает значение поля fromUser/toUser
func ParseUserRef(v interface{}) UserRef {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return InlineRef{Username: strings.TrimSpace(val)}
	case map[string]interface{}:
		ref := IdentityRef{
			ID:       stringField(val, "id", "_id"),
			Username: stringField(val, "username", "name"),
		}
		if ref.ID == "" && ref.Username == "" {
			return nil
		}
		return ref
	default:
		return nil
	}
}

// stringField первое непустое строковое (или числовое) значение по ключам
func stringField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
