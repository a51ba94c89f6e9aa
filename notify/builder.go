package notify

import (
	"strings"

	"github.com/geekxflood/idrac2ntfy/alert"
	"github.com/geekxflood/idrac2ntfy/idrac"
)

// Severity presentation.
const (
	IconCritical = "🚨"
	IconWarning  = "⚠️"
	IconOK       = "✅"
	IconUnknown  = "❓"
)

// BuilderConfig configures a Builder. The zero value applies the severity
// table unchanged.
type BuilderConfig struct {
	// Priority, when set, replaces the severity-derived priority.
	Priority Priority

	// Tags are appended to every message.
	Tags []string
}

// Builder renders Alerts as Messages. Build has no side effects.
type Builder struct {
	priority Priority
	tags     []string
}

// NewBuilder returns a Builder for config.
func NewBuilder(config BuilderConfig) *Builder {
	tags := make([]string, 0, len(config.Tags))
	for _, t := range config.Tags {
		if t = headerValue(t); t != "" {
			tags = append(tags, t)
		}
	}
	return &Builder{priority: config.Priority, tags: tags}
}

// Presentation returns the priority, icon and ntfy tag for a severity.
func Presentation(s idrac.Severity) (priority Priority, icon, tag string) {
	switch s {
	case idrac.Critical:
		return PriorityUrgent, IconCritical, "rotating_light"
	case idrac.Warning:
		return PriorityHigh, IconWarning, "warning"
	case idrac.OK:
		return PriorityDefault, IconOK, "white_check_mark"
	case idrac.Unknown:
		return PriorityDefault, IconUnknown, "question"
	}
	// Out-of-range values only; the switch above is kept exhaustive by lint.
	return PriorityDefault, IconUnknown, "question"
}

// Build returns the Message for a.
func (b *Builder) Build(a alert.Alert) Message {
	priority, icon, iconTag := Presentation(a.Severity)
	if b.priority != "" {
		priority = b.priority
	}

	tags := []string{iconTag, "server"}
	if slug := slugify(a.Category); slug != "" {
		tags = append(tags, slug)
	}
	tags = append(tags, b.tags...)

	return Message{
		Priority: priority,
		Icon:     icon,
		Title:    headerValue(title(a)),
		Body:     a.Description,
		Tags:     tags,
	}
}

func title(a alert.Alert) string {
	var sb strings.Builder
	if a.Source != "" {
		sb.WriteString(a.Source)
		sb.WriteByte(' ')
	}
	sb.WriteString(a.Severity.String())
	if a.Title != "" {
		sb.WriteString(": ")
		sb.WriteString(a.Title)
	}
	return sb.String()
}

// slugify turns "Power Supply Critical" into "power_supply_critical".
func slugify(s string) string {
	return strings.ReplaceAll(headerValue(strings.ToLower(s)), " ", "_")
}
