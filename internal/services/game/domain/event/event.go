package event

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Type identifies a notification type, e.g. "combat.damage_applied".
type Type string

// Notification is a notification-class value.
type Notification struct {
	Type      Type
	SessionID string
	Tick      uint64
	// Subjects lists the stable ids of the objects the outcome concerns.
	Subjects    []string
	PayloadJSON []byte
}

// Owner returns the namespace prefix of the notification type.
func (n Notification) Owner() string {
	owner, _, found := strings.Cut(string(n.Type), ".")
	if !found {
		return ""
	}
	return owner
}

// Decode unmarshals the notification payload into target.
func (n Notification) Decode(target any) error {
	payload := n.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return json.Unmarshal(payload, target)
}

// Clone returns a deep copy safe to hand to another consumer.
func (n Notification) Clone() Notification {
	cloned := n
	if n.Subjects != nil {
		cloned.Subjects = append([]string(nil), n.Subjects...)
	}
	if n.PayloadJSON != nil {
		cloned.PayloadJSON = append([]byte(nil), n.PayloadJSON...)
	}
	return cloned
}
