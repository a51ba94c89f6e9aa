package idrac

import "strings"

// Names of the trap variables iDRAC attaches to its alerts.
const (
	VarAlertMessage        = "alertMessage"
	VarAlertCurrentStatus  = "alertCurrentStatus"
	VarAlertPreviousStatus = "alertPreviousStatus"
	VarAlertMessageID      = "alertMessageID"
	VarSystemFQDN          = "systemFQDN"
	VarSystemServiceTag    = "systemServiceTag"
	VarChassisServiceTag   = "chassisServiceTag"
)

var trapVars = map[string]string{
	RootOID + ".3.1.1":   VarAlertMessage,
	RootOID + ".3.1.2":   VarAlertCurrentStatus,
	RootOID + ".3.1.3":   VarAlertPreviousStatus,
	RootOID + ".3.1.4":   VarAlertMessageID,
	RootOID + ".1.1.1":   VarSystemFQDN,
	RootOID + ".1.1.11":  VarSystemServiceTag,
	RootOID + ".4.300.1": VarChassisServiceTag,

	// Some firmware revisions and the "send test trap" button use these.
	RootOID + ".4.300.1.6": VarAlertMessage,
	RootOID + ".4.300.1.8": VarAlertCurrentStatus,
}

// VarName resolves a trap variable OID to its MIB name. Scalar instances
// (trailing ".0") resolve like their object. Unknown OIDs are returned
// unchanged.
func VarName(oid string) string {
	n := normalizeOID(oid)
	if name, ok := trapVars[n]; ok {
		return name
	}
	if base, found := strings.CutSuffix(n, ".0"); found {
		if name, ok := trapVars[base]; ok {
			return name
		}
	}
	return oid
}
