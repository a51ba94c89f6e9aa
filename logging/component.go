package logging

import (
	"context"
	"log/slog"
)

// Logger is the logging contract used by the pipeline components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}

// ComponentLogger tags every record with component and component_type and
// appends context fields (trap_id) to *Context calls.
//
// A ComponentLogger resolves the global logger lazily, so components created
// before Init still follow the configured handler and level.
type ComponentLogger struct {
	base          *slog.Logger // nil means "use the global logger"
	attrs         []any
	component     string
	componentType string
}

// NewComponentLogger returns a logger for the named component.
func NewComponentLogger(component, componentType string) *ComponentLogger {
	return &ComponentLogger{component: component, componentType: componentType}
}

// NewComponentLoggerFrom is NewComponentLogger on top of an explicit logger,
// typically one returned by New.
func NewComponentLoggerFrom(base *slog.Logger, component, componentType string) *ComponentLogger {
	return &ComponentLogger{base: base, component: component, componentType: componentType}
}

var _ Logger = (*ComponentLogger)(nil)

func (cl *ComponentLogger) logger() *slog.Logger {
	base := cl.base
	if base == nil {
		base = Get()
	}
	l := base.With("component", cl.component, "component_type", cl.componentType)
	if len(cl.attrs) > 0 {
		l = l.With(cl.attrs...)
	}
	return l
}

// Debug logs at debug level.
func (cl *ComponentLogger) Debug(msg string, args ...any) { cl.logger().Debug(msg, args...) }

// Info logs at info level.
func (cl *ComponentLogger) Info(msg string, args ...any) { cl.logger().Info(msg, args...) }

// Warn logs at warn level.
func (cl *ComponentLogger) Warn(msg string, args ...any) { cl.logger().Warn(msg, args...) }

// Error logs at error level.
func (cl *ComponentLogger) Error(msg string, args ...any) { cl.logger().Error(msg, args...) }

// DebugContext logs at debug level with context fields.
func (cl *ComponentLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	cl.logger().DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

// InfoContext logs at info level with context fields.
func (cl *ComponentLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	cl.logger().InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

// WarnContext logs at warn level with context fields.
func (cl *ComponentLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	cl.logger().WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

// ErrorContext logs at error level with context fields.
func (cl *ComponentLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	cl.logger().ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

// With returns a child logger carrying additional attributes.
func (cl *ComponentLogger) With(args ...any) Logger {
	attrs := make([]any, 0, len(cl.attrs)+len(args))
	attrs = append(attrs, cl.attrs...)
	attrs = append(attrs, args...)
	return &ComponentLogger{
		base:          cl.base,
		attrs:         attrs,
		component:     cl.component,
		componentType: cl.componentType,
	}
}

// GetComponent returns the component name.
func (cl *ComponentLogger) GetComponent() string { return cl.component }

// GetComponentType returns the component type.
func (cl *ComponentLogger) GetComponentType() string { return cl.componentType }
