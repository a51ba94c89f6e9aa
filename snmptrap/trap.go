// Package snmptrap decodes raw SNMP v1/v2c trap datagrams into TrapEvents.
//
// Decoding is purely structural: the envelope is checked (version, community),
// the trap PDU is decoded with gosnmp, and every variable binding is kept as
// received. Interpreting the bindings is the job of package alert.
//
// Basic Usage:
//
//	decoder := snmptrap.NewDecoder(snmptrap.DecoderConfig{Community: "public"})
//	event, err := decoder.Decode(datagram, senderAddr)
//	switch {
//	case errors.Is(err, snmptrap.ErrAuthenticationMismatch):
//		// wrong community, drop
//	case err != nil:
//		// malformed or unsupported, drop
//	}
package snmptrap

import (
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
)

// SNMPv2-MIB header variables carried at the top of every v2c trap.
const (
	SysUpTimeOID   = "1.3.6.1.2.1.1.3.0"
	SnmpTrapOIDOID = "1.3.6.1.6.3.1.1.4.1.0"
)

// genericTrapOIDs maps SNMPv1 generic-trap values 0..5 to their SNMPv2
// notification OIDs (RFC 3584, section 3.1).
var genericTrapOIDs = []string{
	"1.3.6.1.6.3.1.1.5.1", // coldStart
	"1.3.6.1.6.3.1.1.5.2", // warmStart
	"1.3.6.1.6.3.1.1.5.3", // linkDown
	"1.3.6.1.6.3.1.1.5.4", // linkUp
	"1.3.6.1.6.3.1.1.5.5", // authenticationFailure
	"1.3.6.1.6.3.1.1.5.6", // egpNeighborLoss
}

const enterpriseSpecificTrap = 6

// VariableBinding is one OID/value pair from a trap PDU.
//
// Fields:
//   - OID: dotted object identifier without a leading dot
//   - Type: ASN.1 type name as reported by gosnmp (OctetString, Integer, ...)
//   - Value: the decoded value as returned by gosnmp: []byte for
//     OctetString, int for Integer, string for ObjectIdentifier and
//     IPAddress, unsigned integers for counters, gauges and TimeTicks
type VariableBinding struct {
	OID   string
	Type  string
	Value any
}

// Text renders the value as a string without altering the binding.
func (b VariableBinding) Text() string {
	switch v := b.Value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimPrefix(v, ".")
	case []byte:
		if utf8.Valid(v) {
			return strings.TrimRight(string(v), "\x00")
		}
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns the value as an integer. Numeric types convert directly and
// octet strings holding a decimal number are parsed, since some iDRAC
// firmware sends status codes as text.
func (b VariableBinding) Int() (int64, bool) {
	switch v := b.Value.(type) {
	case nil:
		return 0, false
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n := gosnmp.ToBigInt(v)
		if !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	case *big.Int:
		if v == nil || !v.IsInt64() {
			return 0, false
		}
		return v.Int64(), true
	default:
		return 0, false
	}
}

// TrapEvent is one decoded trap datagram.
//
// Fields:
//   - Sender: UDP address the datagram came from
//   - Community: community string of the message
//   - Version: "1" or "2c"
//   - TrapOID: notification OID; snmpTrapOID.0 for v2c, the RFC 3584
//     translation of enterprise/generic/specific for v1
//   - Bindings: variable bindings in wire order
//   - ReceivedAt: time the datagram was decoded
type TrapEvent struct {
	Sender     *net.UDPAddr
	Community  string
	Version    string
	TrapOID    string
	Bindings   []VariableBinding
	ReceivedAt time.Time
}

// SenderIP returns the sender IP as text, or "unknown".
func (e *TrapEvent) SenderIP() string {
	if e.Sender == nil || e.Sender.IP == nil {
		return "unknown"
	}
	return e.Sender.IP.String()
}

// Binding returns the first binding whose OID equals oid.
func (e *TrapEvent) Binding(oid string) (VariableBinding, bool) {
	oid = normalizeOID(oid)
	for _, b := range e.Bindings {
		if b.OID == oid {
			return b, true
		}
	}
	return VariableBinding{}, false
}

// v1TrapOID derives the notification OID of an SNMPv1 trap.
func v1TrapOID(enterprise string, generic, specific int) string {
	if generic >= 0 && generic < len(genericTrapOIDs) {
		return genericTrapOIDs[generic]
	}
	if generic == enterpriseSpecificTrap {
		return normalizeOID(enterprise) + ".0." + strconv.Itoa(specific)
	}
	return normalizeOID(enterprise)
}

func normalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

func versionString(v gosnmp.SnmpVersion) string {
	switch v {
	case gosnmp.Version1:
		return "1"
	case gosnmp.Version2c:
		return "2c"
	case gosnmp.Version3:
		return "3"
	default:
		return "unknown"
	}
}
