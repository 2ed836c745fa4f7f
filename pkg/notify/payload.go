package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Display defaults for fields missing from a push payload.
const (
	DefaultTitle = "Paradigm Services"
	DefaultBody  = "You have a new notification"
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/icon-96x96.png"
	DefaultURL   = "/"
)

// DefaultVibrate is the on/off vibration pattern in milliseconds.
var DefaultVibrate = []int{200, 100, 200}

// Action is a button offered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is the pushed message. Every field is optional.
type Payload struct {
	Title   string         `json:"title,omitempty"`
	Body    string         `json:"body,omitempty"`
	Icon    string         `json:"icon,omitempty"`
	Badge   string         `json:"badge,omitempty"`
	Vibrate []int          `json:"vibrate,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
}

// ParsePayload decodes raw push data. An empty or malformed payload yields
// the zero Payload, which renders with every default.
func ParsePayload(raw []byte) Payload {
	var p Payload
	if len(raw) == 0 {
		return p
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}
	}
	return p
}

// Notification is a display request built from a payload.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Icon      string         `json:"icon"`
	Badge     string         `json:"badge"`
	Vibrate   []int          `json:"vibrate"`
	Data      map[string]any `json:"data"`
	Actions   []Action       `json:"actions"`
	CreatedAt time.Time      `json:"created_at"`
}

// BuildNotification applies defaults to every missing payload field.
func BuildNotification(p Payload) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Title:     orDefault(p.Title, DefaultTitle),
		Body:      orDefault(p.Body, DefaultBody),
		Icon:      orDefault(p.Icon, DefaultIcon),
		Badge:     orDefault(p.Badge, DefaultBadge),
		Vibrate:   append([]int(nil), DefaultVibrate...),
		Data:      make(map[string]any, len(p.Data)),
		Actions:   []Action{},
		CreatedAt: time.Now(),
	}

	if len(p.Vibrate) > 0 {
		n.Vibrate = append([]int(nil), p.Vibrate...)
	}
	for k, v := range p.Data {
		n.Data[k] = v
	}
	if len(p.Actions) > 0 {
		n.Actions = append(n.Actions, p.Actions...)
	}
	return n
}

// URL is the click target: data.url when it is a non-empty string, else "/".
func (n Notification) URL() string {
	if u, ok := n.Data["url"].(string); ok && u != "" {
		return u
	}
	return DefaultURL
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
