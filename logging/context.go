package logging

import (
	"context"
	"fmt"

	"github.com/gosnmp/gosnmp"
)

type contextKey string

const (
	trapIDKey contextKey = "trap_id"
	senderKey contextKey = "sender"
)

// WithTrapID returns a context carrying the trap correlation ID.
func WithTrapID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, trapIDKey, id)
}

// TrapID returns the trap correlation ID stored in ctx, or "".
func TrapID(ctx context.Context) string {
	id, _ := ctx.Value(trapIDKey).(string)
	return id
}

// WithSender returns a context carrying the trap sender address.
func WithSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderKey, sender)
}

func withContextFields(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	for _, key := range []contextKey{trapIDKey, senderKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			args = append(args, string(key), v)
		}
	}
	return args
}

// snmpLogger forwards gosnmp's internal tracing to a Logger at debug level.
type snmpLogger struct {
	log Logger
}

func (s snmpLogger) Print(v ...interface{}) {
	s.log.Debug(fmt.Sprint(v...))
}

func (s snmpLogger) Printf(format string, v ...interface{}) {
	s.log.Debug(fmt.Sprintf(format, v...))
}

// SNMPLogger adapts log for use as gosnmp.GoSNMP.Logger.
func SNMPLogger(log Logger) gosnmp.Logger {
	return gosnmp.NewLogger(snmpLogger{log: log})
}
