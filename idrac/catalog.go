// Package idrac holds the static knowledge needed to interpret Dell iDRAC
// SNMP traps: the trap OID catalog, the well-known trap variable OIDs and the
// iDRAC status code table.
//
// Everything in this package is read-only after package initialization, so
// lookups are safe from any number of goroutines without locking.
//
// Basic Usage:
//
//	suffix, ok := idrac.Suffix("1.3.6.1.4.1.674.10892.5.3.2.6")
//	if ok {
//		if entry, found := idrac.Lookup(suffix); found {
//			fmt.Println(entry.Category) // "Fan Critical"
//		}
//	}
package idrac

import "strings"

const (
	// EnterpriseOID is the Dell enterprise branch.
	EnterpriseOID = "1.3.6.1.4.1.674"

	// RootOID is the iDRAC subtree (IDRAC-MIB-SMIv2) under the Dell branch.
	RootOID = "1.3.6.1.4.1.674.10892.5"
)

// Entry describes one known iDRAC trap.
//
// Fields:
//   - Suffix: OID relative to EnterpriseOID, without leading dot
//   - Category: short human label used as the alert title
//   - Template: description used when the trap carries no alertMessage;
//     may reference {host}, {service_tag} and {trap_oid}
//   - Severity: nominal severity of the trap type
type Entry struct {
	Suffix   string
	Category string
	Template string
	Severity Severity
}

// catalog is keyed by Suffix.
var catalog = buildCatalog([]Entry{
	{"10892.5.0.10395", "Test Alert", "Test trap sent from {host}", OK},
	{"10892.5.3.2.29", "Test Alert", "Test trap sent from {host}", OK},

	{"10892.5.3.2.1", "Temperature Warning", "Temperature probe reading outside warning threshold on {host}", Warning},
	{"10892.5.3.2.2", "Temperature Critical", "Temperature probe reading outside critical threshold on {host}", Critical},
	{"10892.5.3.2.3", "Voltage Warning", "Voltage probe reading outside warning threshold on {host}", Warning},
	{"10892.5.3.2.4", "Voltage Critical", "Voltage probe reading outside critical threshold on {host}", Critical},
	{"10892.5.3.2.5", "Fan Warning", "Fan speed outside warning threshold on {host}", Warning},
	{"10892.5.3.2.6", "Fan Critical", "Fan failure or speed outside critical threshold on {host}", Critical},
	{"10892.5.3.2.7", "Power Supply Warning", "Power supply degraded on {host}", Warning},
	{"10892.5.3.2.8", "Power Supply Critical", "Power supply failure on {host}", Critical},
	{"10892.5.3.2.9", "Memory Warning", "Correctable memory errors reported on {host}", Warning},
	{"10892.5.3.2.10", "Memory Critical", "Uncorrectable memory error on {host}", Critical},
	{"10892.5.3.2.11", "Storage Warning", "Physical disk predictive failure on {host}", Warning},
	{"10892.5.3.2.12", "Storage Critical", "Physical disk failure on {host}", Critical},
	{"10892.5.3.2.13", "Processor Warning", "Processor warning condition on {host}", Warning},
	{"10892.5.3.2.14", "Processor Critical", "Processor failure on {host}", Critical},
	{"10892.5.3.2.15", "Battery Warning", "Battery low or degraded on {host}", Warning},
	{"10892.5.3.2.16", "Battery Critical", "Battery failure on {host}", Critical},
	{"10892.5.3.2.17", "System Event", "System event log entry recorded on {host}", Unknown},
	{"10892.5.3.2.18", "Hardware Event", "Hardware log entry recorded on {host}", Unknown},
	{"10892.5.3.2.19", "Redundancy Warning", "Redundancy degraded on {host}", Warning},
	{"10892.5.3.2.20", "Redundancy Lost", "Redundancy lost on {host}", Critical},
	{"10892.5.3.2.21", "Power State Change", "Server power state changed on {host}", OK},
	{"10892.5.3.2.22", "License Event", "License event on {host}", OK},
	{"10892.5.3.2.23", "Network Warning", "Network interface warning on {host}", Warning},
	{"10892.5.3.2.24", "Network Critical", "Network interface failure on {host}", Critical},
	{"10892.5.3.2.25", "Virtual Disk Warning", "Virtual disk degraded on {host}", Warning},
	{"10892.5.3.2.26", "Virtual Disk Critical", "Virtual disk failed on {host}", Critical},
	{"10892.5.3.2.27", "RAID Controller Warning", "RAID controller warning on {host}", Warning},
	{"10892.5.3.2.28", "RAID Controller Critical", "RAID controller failure on {host}", Critical},

	{"10892.5", "iDRAC Alert", "iDRAC alert {trap_oid} from {host}", Unknown},
})

func buildCatalog(entries []Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Suffix] = e
	}
	return m
}

// Lookup returns the catalog entry for an OID suffix relative to
// EnterpriseOID. Matching is exact.
func Lookup(suffix string) (Entry, bool) {
	e, ok := catalog[strings.TrimPrefix(suffix, ".")]
	return e, ok
}

// LookupOID is Lookup for a full dotted OID.
func LookupOID(oid string) (Entry, bool) {
	suffix, ok := Suffix(oid)
	if !ok {
		return Entry{}, false
	}
	return Lookup(suffix)
}

// Entries returns a copy of every catalog entry, in no particular order.
func Entries() []Entry {
	out := make([]Entry, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e)
	}
	return out
}

// Suffix strips EnterpriseOID from oid. It reports false when oid is not
// under the Dell enterprise branch.
func Suffix(oid string) (string, bool) {
	oid = normalizeOID(oid)
	if !strings.HasPrefix(oid, EnterpriseOID+".") {
		return "", false
	}
	return oid[len(EnterpriseOID)+1:], true
}

// IsDell reports whether oid belongs to the Dell enterprise branch.
func IsDell(oid string) bool {
	_, ok := Suffix(oid)
	return ok
}

// normalizeOID drops the leading dot gosnmp puts on OIDs.
func normalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
