package idrac

// Severity is the normalized alert severity derived from an iDRAC status code.
type Severity int

// Severity values. The zero value is Unknown so an unset severity never
// reads as healthy.
const (
	Unknown Severity = iota
	OK
	Warning
	Critical
)

// AllSeverities returns every Severity value in declaration order.
func AllSeverities() []Severity {
	return []Severity{Unknown, OK, Warning, Critical}
}

// String returns the display name used in notification titles and logs.
func (s Severity) String() string {
	switch s {
	case Critical:
		return "Critical"
	case Warning:
		return "Warning"
	case OK:
		return "OK"
	case Unknown:
		return "Unknown"
	}
	return "Unknown"
}

// Status is a raw iDRAC status value as carried by alertCurrentStatus
// (DellStatus textual convention in IDRAC-MIB-SMIv2).
type Status int

// iDRAC status codes.
const (
	StatusOther          Status = 1
	StatusUnknown        Status = 2
	StatusOK             Status = 3
	StatusNonCritical    Status = 4
	StatusCritical       Status = 5
	StatusNonRecoverable Status = 6
)

var statusNames = map[Status]string{
	StatusOther:          "other",
	StatusUnknown:        "unknown",
	StatusOK:             "ok",
	StatusNonCritical:    "nonCritical",
	StatusCritical:       "critical",
	StatusNonRecoverable: "nonRecoverable",
}

// StatusFromCode returns the Status for an iDRAC status code, or false when
// the code is outside the DellStatus range.
func StatusFromCode(code int64) (Status, bool) {
	if code < int64(StatusOther) || code > int64(StatusNonRecoverable) {
		return 0, false
	}
	s := Status(code)
	if _, ok := statusNames[s]; !ok {
		return 0, false
	}
	return s, true
}

// String returns the MIB name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Severity folds the six iDRAC statuses into the four alert severities.
// "other" is informational and reported as OK.
func (s Status) Severity() Severity {
	switch s {
	case StatusCritical, StatusNonRecoverable:
		return Critical
	case StatusNonCritical:
		return Warning
	case StatusOK, StatusOther:
		return OK
	case StatusUnknown:
		return Unknown
	}
	return Unknown
}
