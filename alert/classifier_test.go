package alert

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/geekxflood/idrac2ntfy/idrac"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/snmptrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	messageOID    = "1.3.6.1.4.1.674.10892.5.3.1.1"
	statusOID     = "1.3.6.1.4.1.674.10892.5.3.1.2"
	messageIDOID  = "1.3.6.1.4.1.674.10892.5.3.1.4"
	fqdnOID       = "1.3.6.1.4.1.674.10892.5.1.1.1.0"
	serviceTagOID = "1.3.6.1.4.1.674.10892.5.1.1.11.0"
	chassisTagOID = "1.3.6.1.4.1.674.10892.5.4.300.1"
)

func newTestClassifier() *Classifier {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClassifier(Config{
		Source: "idrac-r740",
		Logger: logging.NewComponentLoggerFrom(base, "classifier", "alert"),
	})
}

func newEvent(trapOID string, bindings ...snmptrap.VariableBinding) *snmptrap.TrapEvent {
	return &snmptrap.TrapEvent{
		Sender:     &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 162},
		Community:  "public",
		Version:    "2c",
		TrapOID:    trapOID,
		Bindings:   bindings,
		ReceivedAt: time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC),
	}
}

func text(oid, value string) snmptrap.VariableBinding {
	return snmptrap.VariableBinding{OID: oid, Type: "OctetString", Value: []byte(value)}
}

func integer(oid string, value int) snmptrap.VariableBinding {
	return snmptrap.VariableBinding{OID: oid, Type: "Integer", Value: value}
}

func TestClassifyUsesMessageAndStatus(t *testing.T) {
	c := newTestClassifier()
	ctx := logging.WithTrapID(context.Background(), "trap-1")

	a := c.Classify(ctx, newEvent("1.3.6.1.4.1.674.10892.5.3.2.6",
		text(messageOID, "Fan RPM below threshold"),
		integer(statusOID, 6),
		text(messageIDOID, "FAN0001"),
		text(fqdnOID, "r740.example.com"),
		text(serviceTagOID, "ABC1234"),
	))

	assert.Equal(t, "trap-1", a.ID)
	assert.Equal(t, "Fan RPM below threshold", a.Description)
	assert.Equal(t, idrac.Critical, a.Severity)
	assert.Equal(t, "nonRecoverable", a.Status)
	assert.Equal(t, "Fan Critical", a.Title)
	assert.Equal(t, "Fan Critical", a.Category)
	assert.Equal(t, "FAN0001", a.MessageID)
	assert.Equal(t, "idrac-r740", a.Source)
	assert.Equal(t, "r740.example.com", a.Host)
	assert.Equal(t, "ABC1234", a.ServiceTag)
	assert.Equal(t, "192.0.2.10", a.Sender)
	assert.Equal(t, "1.3.6.1.4.1.674.10892.5.3.2.6", a.TrapOID)
}

func TestClassifyStatusTable(t *testing.T) {
	tests := []struct {
		code int
		want idrac.Severity
	}{
		{1, idrac.OK},
		{2, idrac.Unknown},
		{3, idrac.OK},
		{4, idrac.Warning},
		{5, idrac.Critical},
		{6, idrac.Critical},
		{0, idrac.Unknown},
		{7, idrac.Unknown},
		{-1, idrac.Unknown},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.1",
			text(messageOID, "sensor event"),
			integer(statusOID, tt.code),
		))
		assert.Equal(t, tt.want, a.Severity, "status code %d", tt.code)
	}
}

func TestClassifyRejectsWideStatusCodes(t *testing.T) {
	c := newTestClassifier()

	for _, b := range []snmptrap.VariableBinding{
		{OID: statusOID, Type: "Counter64", Value: uint64(1<<32 + 5)},
		{OID: statusOID, Type: "Integer", Value: int64(-(1 << 32) + 5)},
		text(statusOID, "4294967301"),
	} {
		a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.1", b))
		assert.Equal(t, idrac.Unknown, a.Severity, "status %v", b.Value)
		assert.Empty(t, a.Status)
	}
}

func TestClassifyStatusAsText(t *testing.T) {
	c := newTestClassifier()
	a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.3",
		text(statusOID, "4"),
	))
	assert.Equal(t, idrac.Warning, a.Severity)
	assert.Equal(t, "nonCritical", a.Status)

	a = c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.3",
		text(statusOID, "degraded"),
	))
	assert.Equal(t, idrac.Unknown, a.Severity)
	assert.Empty(t, a.Status)
}

func TestClassifyTemplateWithoutMessage(t *testing.T) {
	c := newTestClassifier()

	a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.8",
		text(chassisTagOID, "CHS5678"),
	))

	assert.Equal(t, "Power supply failure on 192.0.2.10", a.Description)
	assert.Equal(t, "CHS5678", a.ServiceTag)
	assert.Equal(t, idrac.Unknown, a.Severity, "severity comes from the status binding only")
}

func TestClassifyBlankMessageFallsBackToTemplate(t *testing.T) {
	c := newTestClassifier()

	a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.0.10395",
		text(messageOID, "   "),
		text(fqdnOID, "idrac.lab"),
	))
	assert.Equal(t, "Test trap sent from idrac.lab", a.Description)
	assert.Equal(t, "Test Alert", a.Title)
}

func TestClassifyUnknownOID(t *testing.T) {
	c := newTestClassifier()

	a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.9999.1.2.3"))

	assert.Equal(t, idrac.Unknown, a.Severity)
	assert.Equal(t, "Unrecognized SNMP trap 1.3.6.1.4.1.9999.1.2.3 from 192.0.2.10", a.Description)
	assert.Equal(t, "iDRAC Alert (1.3.6.1.4.1.9999.1.2.3)", a.Title)
	assert.Empty(t, a.Category)
	assert.NotEmpty(t, a.ID, "an ID is generated when the context carries none")
}

func TestClassifyAlternativeTestTrapVars(t *testing.T) {
	c := newTestClassifier()

	a := c.Classify(context.Background(), newEvent("1.3.6.1.4.1.674.10892.5.3.2.29",
		text("1.3.6.1.4.1.674.10892.5.4.300.1.6", "Test event generated"),
		integer("1.3.6.1.4.1.674.10892.5.4.300.1.8", 3),
	))
	assert.Equal(t, "Test event generated", a.Description)
	assert.Equal(t, idrac.OK, a.Severity)
}

func TestClassifyWithoutSender(t *testing.T) {
	c := newTestClassifier()
	event := newEvent("")
	event.Sender = nil

	a := c.Classify(context.Background(), event)
	require.NotEmpty(t, a.Description)
	assert.Equal(t, "unknown", a.TrapOID)
	assert.Equal(t, "unknown", a.Host)
}

func TestRecognizedDellTrapsAlwaysDescribed(t *testing.T) {
	c := newTestClassifier()
	for _, entry := range idrac.Entries() {
		a := c.Classify(context.Background(), newEvent(idrac.EnterpriseOID+"."+entry.Suffix))
		assert.NotEmpty(t, a.Description, entry.Suffix)
		assert.NotContains(t, a.Description, "{", entry.Suffix)
		assert.Equal(t, entry.Category, a.Title)
	}
}
