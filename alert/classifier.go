// Package alert turns decoded SNMP trap events into normalized Alerts.
//
// Classification never fails: a trap with an unknown OID, no message text or
// no status code still produces an Alert, falling back to catalog templates,
// a generic description and Unknown severity.
//
// Basic Usage:
//
//	classifier := alert.NewClassifier(alert.Config{Source: "idrac-r740"})
//	a := classifier.Classify(ctx, event)
//	fmt.Println(a.Severity, a.Title, a.Description)
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geekxflood/idrac2ntfy/idrac"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/snmptrap"
	"github.com/google/uuid"
)

// Alert is the normalized form of one trap.
//
// Fields:
//   - ID: correlation ID, shared with the trap_id log field
//   - Title: catalog category, or a generic label for unknown OIDs
//   - Description: alertMessage text, catalog template or generic fallback
//   - Severity: derived from alertCurrentStatus only
//   - Source: configured device label
//   - Status: iDRAC status name, empty when absent or unrecognized
//   - Category, MessageID, Host, ServiceTag: trap details for logs and tags
//   - TrapOID, Sender, ReceivedAt: copied from the TrapEvent
type Alert struct {
	ID          string
	Title       string
	Description string
	Severity    idrac.Severity
	Source      string
	Status      string
	Category    string
	MessageID   string
	Host        string
	ServiceTag  string
	TrapOID     string
	Sender      string
	ReceivedAt  time.Time
}

// Config configures a Classifier.
type Config struct {
	// Source is the device label put on every Alert.
	Source string

	// Logger defaults to a component logger on the global logger.
	Logger logging.Logger
}

// Classifier builds Alerts from TrapEvents. It is stateless apart from its
// configuration and safe for concurrent use.
type Classifier struct {
	source string
	logger logging.Logger
}

// NewClassifier returns a Classifier for config.
func NewClassifier(config Config) *Classifier {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewComponentLogger("classifier", "alert")
	}
	return &Classifier{source: config.Source, logger: logger}
}

// Classify returns the Alert for event.
func (c *Classifier) Classify(ctx context.Context, event *snmptrap.TrapEvent) Alert {
	vars := namedVars(event.Bindings)

	trapOID := event.TrapOID
	if trapOID == "" {
		trapOID = "unknown"
	}

	a := Alert{
		ID:         logging.TrapID(ctx),
		Source:     c.source,
		MessageID:  vars[idrac.VarAlertMessageID],
		Host:       firstNonEmpty(vars[idrac.VarSystemFQDN], event.SenderIP()),
		ServiceTag: firstNonEmpty(vars[idrac.VarSystemServiceTag], vars[idrac.VarChassisServiceTag]),
		TrapOID:    trapOID,
		Sender:     event.SenderIP(),
		ReceivedAt: event.ReceivedAt,
		Severity:   idrac.Unknown,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	if status, ok := statusOf(event.Bindings); ok {
		a.Status = status.String()
		a.Severity = status.Severity()
	}

	entry, known := idrac.LookupOID(trapOID)
	if known {
		a.Title = entry.Category
		a.Category = entry.Category
	} else {
		a.Title = fmt.Sprintf("iDRAC Alert (%s)", trapOID)
	}

	switch msg := strings.TrimSpace(vars[idrac.VarAlertMessage]); {
	case msg != "":
		a.Description = vars[idrac.VarAlertMessage]
	case known:
		a.Description = render(entry.Template, a)
	default:
		a.Description = fmt.Sprintf("Unrecognized SNMP trap %s from %s", trapOID, a.Sender)
	}

	c.logger.DebugContext(ctx, "trap classified",
		"trap_oid", trapOID,
		"known_oid", known,
		"nominal_severity", entry.Severity.String(),
		"severity", a.Severity.String(),
		"status", a.Status)

	return a
}

// namedVars indexes the text of the well-known iDRAC bindings by MIB name.
// The first occurrence of a name wins.
func namedVars(bindings []snmptrap.VariableBinding) map[string]string {
	vars := make(map[string]string, len(bindings))
	for _, b := range bindings {
		name := idrac.VarName(b.OID)
		if _, seen := vars[name]; seen {
			continue
		}
		vars[name] = b.Text()
	}
	return vars
}

// statusOf returns the Status carried by the alertCurrentStatus binding.
func statusOf(bindings []snmptrap.VariableBinding) (idrac.Status, bool) {
	for _, b := range bindings {
		if idrac.VarName(b.OID) != idrac.VarAlertCurrentStatus {
			continue
		}
		code, ok := b.Int()
		if !ok {
			return 0, false
		}
		return idrac.StatusFromCode(code)
	}
	return 0, false
}

func render(template string, a Alert) string {
	serviceTag := a.ServiceTag
	if serviceTag == "" {
		serviceTag = "unknown"
	}
	return strings.NewReplacer(
		"{host}", a.Host,
		"{service_tag}", serviceTag,
		"{trap_oid}", a.TrapOID,
	).Replace(template)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
