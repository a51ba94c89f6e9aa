// Package config loads idrac2ntfy settings using CUE (cuelang.org) for the
// schema, defaults and validation.
//
// A YAML or JSON document is expanded against the environment, unified with
// the embedded CUE schema, validated, and decoded into a typed Settings
// value. Without a file, an embedded document maps the environment variables
// the container image has always used (NTFY_URL, SNMP_COMMUNITY, ...).
//
// # Key Features
//
//   - Embedded CUE schema with defaults and range constraints
//   - YAML and JSON configuration files
//   - Environment variable substitution ($VAR, ${VAR}, ${VAR:-default})
//   - Unknown keys are rejected
//   - Hot reload of the configuration file through fsnotify (see Watcher)
//
// # Basic Usage
//
//	settings, err := config.Load("/etc/idrac2ntfy/config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(settings.GetSNMPPort())
//
// # Environment Variables
//
//	# config.yaml
//	ntfy:
//	  url: "${NTFY_URL:-https://ntfy.sh/idrac}"
//	  token: $NTFY_TOKEN
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/notify"
)

//go:embed schema.cue
var schemaCUE string

//go:embed default.yaml
var defaultYAML []byte

// DefaultSource names the embedded environment-driven document in errors.
const DefaultSource = "environment"

// maxFileSize bounds configuration files.
const maxFileSize = 1 << 20

// Settings is the validated configuration.
type Settings struct {
	SNMP       SNMPSettings       `json:"snmp"`
	WorkerPool WorkerPoolSettings `json:"worker_pool"`
	Ntfy       NtfySettings       `json:"ntfy"`
	Device     DeviceSettings     `json:"device"`
	Logging    LoggingSettings    `json:"logging"`
	Metrics    MetricsSettings    `json:"metrics"`

	source string
}

// SNMPSettings configures trap reception.
type SNMPSettings struct {
	ListenAddress string `json:"listen_address"`
	Port          int    `json:"port"`
	Community     string `json:"community"`
	BufferSize    int    `json:"buffer_size"`
	ReadTimeout   string `json:"read_timeout"`

	readTimeout time.Duration
}

// WorkerPoolSettings configures pipeline concurrency.
type WorkerPoolSettings struct {
	Size         int    `json:"size"`
	QueueSize    int    `json:"queue_size"`
	DrainTimeout string `json:"drain_timeout"`

	drainTimeout time.Duration
}

// NtfySettings configures delivery.
type NtfySettings struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	Priority       string `json:"priority"`
	Tags           any    `json:"tags"`
	Timeout        string `json:"timeout"`
	MaxAttempts    int    `json:"max_attempts"`
	InitialBackoff string `json:"initial_backoff"`
	MaxBackoff     string `json:"max_backoff"`

	priority       notify.Priority
	tags           []string
	timeout        time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// DeviceSettings describes the monitored server.
type DeviceSettings struct {
	Label string `json:"label"`
}

// LoggingSettings mirrors logging.Config.
type LoggingSettings struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	Output    string `json:"output"`
	AddSource bool   `json:"add_source"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	ListenAddress string `json:"listen_address"`
}

// Load reads the configuration file at path, or the embedded environment
// document when path is empty.
func Load(path string) (*Settings, error) {
	if path == "" {
		return LoadBytes(DefaultSource+".yaml", defaultYAML)
	}

	content, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(path, content)
}

// LoadBytes parses content as the file name; the extension selects YAML or
// JSON.
func LoadBytes(name string, content []byte) (*Settings, error) {
	content = expandEnvironmentVariables(content)
	if err := validateFileContent(content, name); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		file, err := yaml.Extract(name, content)
		if err != nil {
			return nil, fmt.Errorf("failed to extract YAML config: %w", err)
		}
		value = ctx.BuildFile(file)
	case ".json":
		value = ctx.CompileBytes(content, cue.Filename(name))
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatValidationError(name, err)
	}

	settings := &Settings{source: name}
	if err := unified.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return settings, nil
}

// Validate checks what the schema cannot express and resolves durations,
// priority and tags. Load calls it; call it again after editing Settings.
func (s *Settings) Validate() error {
	var errs []error

	parse := func(field, value string, dst *time.Duration) {
		d, err := time.ParseDuration(value)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		case d <= 0:
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", field, value))
		default:
			*dst = d
		}
	}
	parse("snmp.read_timeout", s.SNMP.ReadTimeout, &s.SNMP.readTimeout)
	parse("worker_pool.drain_timeout", s.WorkerPool.DrainTimeout, &s.WorkerPool.drainTimeout)
	parse("ntfy.timeout", s.Ntfy.Timeout, &s.Ntfy.timeout)
	parse("ntfy.initial_backoff", s.Ntfy.InitialBackoff, &s.Ntfy.initialBackoff)
	parse("ntfy.max_backoff", s.Ntfy.MaxBackoff, &s.Ntfy.maxBackoff)

	if s.Ntfy.maxBackoff > 0 && s.Ntfy.maxBackoff < s.Ntfy.initialBackoff {
		errs = append(errs, errors.New("ntfy.max_backoff: must not be below ntfy.initial_backoff"))
	}

	priority, err := notify.ParsePriority(s.Ntfy.Priority)
	if err != nil {
		errs = append(errs, fmt.Errorf("ntfy.priority: %w", err))
	}
	s.Ntfy.priority = priority

	tags, err := parseTags(s.Ntfy.Tags)
	if err != nil {
		errs = append(errs, fmt.Errorf("ntfy.tags: %w", err))
	}
	s.Ntfy.tags = tags

	if !logging.ValidateLevel(s.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: invalid level %q (must be debug, info, warn, or error)", s.Logging.Level))
	}
	if !logging.ValidateFormat(s.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: invalid format %q (must be logfmt or json)", s.Logging.Format))
	}
	s.Logging.Level = strings.ToLower(s.Logging.Level)
	s.Logging.Format = strings.ToLower(s.Logging.Format)

	if strings.TrimSpace(s.Device.Label) == "" {
		errs = append(errs, errors.New("device.label: cannot be empty"))
	}

	return errors.Join(errs...)
}

func parseTags(raw any) ([]string, error) {
	var parts []string
	switch v := raw.(type) {
	case nil:
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("tag %v is not a string", item)
			}
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("unsupported value %T", raw)
	}

	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags, nil
}

// Source returns the file the settings were loaded from.
func (s *Settings) Source() string { return s.source }

// GetSNMPPort implements trapprocessor.Config.
func (s *Settings) GetSNMPPort() int { return s.SNMP.Port }

// GetSNMPBindAddress implements trapprocessor.Config.
func (s *Settings) GetSNMPBindAddress() string { return s.SNMP.ListenAddress }

// GetWorkerPoolSize implements trapprocessor.Config.
func (s *Settings) GetWorkerPoolSize() int { return s.WorkerPool.Size }

// GetWorkerQueueSize implements trapprocessor.Config.
func (s *Settings) GetWorkerQueueSize() int { return s.WorkerPool.QueueSize }

// GetBufferSize implements trapprocessor.Config.
func (s *Settings) GetBufferSize() int { return s.SNMP.BufferSize }

// GetReadTimeout implements trapprocessor.Config.
func (s *Settings) GetReadTimeout() time.Duration { return s.SNMP.readTimeout }

// GetDrainTimeout implements trapprocessor.Config.
func (s *Settings) GetDrainTimeout() time.Duration { return s.WorkerPool.drainTimeout }

// LoggingConfig returns the logging section as a logging.Config.
func (s *Settings) LoggingConfig() logging.Config {
	return logging.Config{
		Level:     s.Logging.Level,
		Format:    s.Logging.Format,
		Output:    s.Logging.Output,
		AddSource: s.Logging.AddSource,
	}
}

// BuilderConfig returns the notification presentation overrides.
func (s *Settings) BuilderConfig() notify.BuilderConfig {
	return notify.BuilderConfig{
		Priority: s.Ntfy.priority,
		Tags:     append([]string(nil), s.Ntfy.tags...),
	}
}

// DispatcherConfig returns the delivery settings. Logger and Recorder are
// left for the caller.
func (s *Settings) DispatcherConfig() notify.DispatcherConfig {
	return notify.DispatcherConfig{
		URL:            s.Ntfy.URL,
		Token:          s.Ntfy.Token,
		Timeout:        s.Ntfy.timeout,
		MaxAttempts:    s.Ntfy.MaxAttempts,
		InitialBackoff: s.Ntfy.initialBackoff,
		MaxBackoff:     s.Ntfy.maxBackoff,
	}
}

// RestartRequired lists the sections of next that differ from s in ways a
// running process cannot apply. Only logging.level is applied live.
func (s *Settings) RestartRequired(next *Settings) []string {
	var changed []string
	if !reflect.DeepEqual(s.SNMP, next.SNMP) {
		changed = append(changed, "snmp")
	}
	if !reflect.DeepEqual(s.WorkerPool, next.WorkerPool) {
		changed = append(changed, "worker_pool")
	}
	if !reflect.DeepEqual(s.Ntfy, next.Ntfy) {
		changed = append(changed, "ntfy")
	}
	if s.Device != next.Device {
		changed = append(changed, "device")
	}
	logs, nextLogs := s.Logging, next.Logging
	logs.Level, nextLogs.Level = "", ""
	if logs != nextLogs {
		changed = append(changed, "logging")
	}
	if s.Metrics != next.Metrics {
		changed = append(changed, "metrics")
	}
	return changed
}

// formatValidationError flattens CUE errors into one line per field.
func formatValidationError(name string, err error) error {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return fmt.Errorf("invalid configuration %s: %s", name, strings.Join(lines, "; "))
}

// validateFileContent validates that the file contains meaningful content.
func validateFileContent(content []byte, name string) error {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return fmt.Errorf("configuration file %s is empty", name)
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return nil
		}
	}
	return fmt.Errorf("configuration file %s contains only comments", name)
}

// safeReadFile reads a regular, reasonably sized file outside system
// directories.
func safeReadFile(filePath string) ([]byte, error) {
	cleanPath := filepath.Clean(filePath)

	if strings.Contains(cleanPath, "..") {
		return nil, errors.New("invalid file path: contains directory traversal")
	}
	if filepath.IsAbs(cleanPath) {
		for _, sysDir := range []string{"/etc/passwd", "/etc/shadow", "/proc/", "/sys/"} {
			if strings.HasPrefix(cleanPath, sysDir) {
				return nil, fmt.Errorf("access to system directory not allowed: %s", sysDir)
			}
		}
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config path %s is not a regular file", cleanPath)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
