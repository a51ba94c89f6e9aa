// Package notify renders Alerts as ntfy messages and delivers them.
//
// Builder is a pure mapping from alert.Alert to Message. Dispatcher POSTs a
// Message to an ntfy topic URL, retrying transient failures with exponential
// backoff and classifying the rest as DeliveryErrors.
//
// Basic Usage:
//
//	builder := notify.NewBuilder(notify.BuilderConfig{})
//	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
//		URL:   "https://ntfy.example.com/idrac",
//		Token: token,
//	})
//	if err != nil {
//		return err
//	}
//
//	msg := builder.Build(a)
//	if err := dispatcher.Deliver(ctx, msg); err != nil {
//		var derr *notify.DeliveryError
//		if errors.As(err, &derr) {
//			log.Printf("dropped after %d attempts: %v", derr.Attempts, err)
//		}
//	}
package notify

import (
	"fmt"
	"strings"
	"unicode"
)

// Priority is an ntfy message priority.
type Priority string

// ntfy priorities. Builder only emits Urgent, High and Default; Low and Min
// are reachable through the operator override.
const (
	PriorityMin     Priority = "min"
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
)

// ntfy also accepts these aliases and the numbers 1..5.
var priorityAliases = map[string]Priority{
	"min":     PriorityMin,
	"1":       PriorityMin,
	"low":     PriorityLow,
	"2":       PriorityLow,
	"default": PriorityDefault,
	"3":       PriorityDefault,
	"high":    PriorityHigh,
	"4":       PriorityHigh,
	"max":     PriorityUrgent,
	"urgent":  PriorityUrgent,
	"5":       PriorityUrgent,
}

// ParsePriority parses an ntfy priority name or number. The empty string
// parses to the empty Priority, meaning "no override".
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	if p, ok := priorityAliases[s]; ok {
		return p, nil
	}
	return "", fmt.Errorf("invalid ntfy priority %q", s)
}

// Message is one rendered ntfy notification.
//
// Fields:
//   - Priority: ntfy priority header value
//   - Icon: emoji shown in front of the title
//   - Title: "<source> <severity>: <alert title>"
//   - Body: the alert description, sent as the request body
//   - Tags: ntfy tags; the first one is the emoji shortcode of Icon
type Message struct {
	Priority Priority
	Icon     string
	Title    string
	Body     string
	Tags     []string
}

// headerValue makes s safe for an HTTP header: control characters (CR, LF,
// NUL, DEL, ...) and runs of whitespace become a single space, and the
// result is trimmed. Trap contents reach the Title header through it.
func headerValue(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsControl(r) || unicode.IsSpace(r)
	}), " ")
}
