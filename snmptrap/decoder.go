package snmptrap

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Decode errors. Each one is wrapped with detail; match with errors.Is.
var (
	// ErrMalformedTrap means the datagram is not a well-formed SNMP trap:
	// bad BER encoding, truncated lengths, or a PDU that is not a trap.
	ErrMalformedTrap = errors.New("malformed trap")

	// ErrUnsupportedVersion means the message is not SNMP v1 or v2c.
	ErrUnsupportedVersion = errors.New("unsupported SNMP version")

	// ErrAuthenticationMismatch means the community string does not match.
	ErrAuthenticationMismatch = errors.New("community string mismatch")
)

// SNMP message version field values (RFC 3416 / RFC 3412).
const (
	wireVersion1  = 0
	wireVersion2c = 1
)

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	// Community is the expected community string. Empty accepts any.
	Community string

	// Logger receives gosnmp's decode tracing. Zero value discards it.
	Logger gosnmp.Logger

	// Now overrides the clock used for ReceivedAt.
	Now func() time.Time
}

// Decoder turns raw datagrams into TrapEvents. It holds no mutable state and
// is safe for concurrent use.
type Decoder struct {
	community []byte
	logger    gosnmp.Logger
	now       func() time.Time
}

// NewDecoder returns a Decoder for config.
func NewDecoder(config DecoderConfig) *Decoder {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Decoder{
		community: []byte(config.Community),
		logger:    config.Logger,
		now:       now,
	}
}

// Decode parses raw as an SNMP v1 Trap-PDU or v2c SNMPv2-Trap-PDU message.
//
// The community string is checked before the PDU is decoded, so
// unauthenticated input costs only the envelope parse.
func (d *Decoder) Decode(raw []byte, sender *net.UDPAddr) (*TrapEvent, error) {
	version, community, err := d.checkEnvelope(raw)
	if err != nil {
		return nil, err
	}

	params := &gosnmp.GoSNMP{
		Version:   version,
		Community: string(community),
		Logger:    d.logger,
	}

	packet, err := params.UnmarshalTrap(raw, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrap, err)
	}
	if packet == nil {
		return nil, fmt.Errorf("%w: empty packet", ErrMalformedTrap)
	}

	event := &TrapEvent{
		Sender:     sender,
		Community:  packet.Community,
		Version:    versionString(version),
		ReceivedAt: d.now(),
		Bindings:   make([]VariableBinding, 0, len(packet.Variables)),
	}

	switch {
	case version == gosnmp.Version1 && packet.PDUType == gosnmp.Trap:
		event.TrapOID = v1TrapOID(packet.Enterprise, packet.GenericTrap, packet.SpecificTrap)
	case version == gosnmp.Version2c && packet.PDUType == gosnmp.SNMPv2Trap:
	default:
		return nil, fmt.Errorf("%w: unexpected PDU type %s for SNMP v%s",
			ErrMalformedTrap, packet.PDUType, event.Version)
	}

	for _, pdu := range packet.Variables {
		b := VariableBinding{
			OID:   normalizeOID(pdu.Name),
			Type:  pdu.Type.String(),
			Value: pdu.Value,
		}
		if b.OID == SnmpTrapOIDOID && event.TrapOID == "" {
			event.TrapOID = b.Text()
		}
		event.Bindings = append(event.Bindings, b)
	}

	return event, nil
}

// checkEnvelope validates the message version and community string by
// reading the leading elements of the outer SEQUENCE.
func (d *Decoder) checkEnvelope(raw []byte) (gosnmp.SnmpVersion, []byte, error) {
	if len(raw) == 0 {
		return 0, nil, fmt.Errorf("%w: empty datagram", ErrMalformedTrap)
	}

	message, _, err := readBER(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: message: %v", ErrMalformedTrap, err)
	}
	if message.tag != tagSequence {
		return 0, nil, fmt.Errorf("%w: message is not a SEQUENCE (tag 0x%02x)", ErrMalformedTrap, message.tag)
	}

	versionField, rest, err := readBER(message.content)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: version: %v", ErrMalformedTrap, err)
	}
	if versionField.tag != tagInteger {
		return 0, nil, fmt.Errorf("%w: version is not an INTEGER (tag 0x%02x)", ErrMalformedTrap, versionField.tag)
	}
	wireVersion, inRange, err := berInteger(versionField.content)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: version: %v", ErrMalformedTrap, err)
	}

	var version gosnmp.SnmpVersion
	switch {
	case inRange && wireVersion == wireVersion1:
		version = gosnmp.Version1
	case inRange && wireVersion == wireVersion2c:
		version = gosnmp.Version2c
	case !inRange:
		return 0, nil, fmt.Errorf("%w: version field out of range", ErrUnsupportedVersion)
	default:
		return 0, nil, fmt.Errorf("%w: version field %d", ErrUnsupportedVersion, wireVersion)
	}

	communityField, _, err := readBER(rest)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: community: %v", ErrMalformedTrap, err)
	}
	if communityField.tag != tagOctetString {
		return 0, nil, fmt.Errorf("%w: community is not an OCTET STRING (tag 0x%02x)", ErrMalformedTrap, communityField.tag)
	}
	community := communityField.content

	if len(d.community) > 0 && subtle.ConstantTimeCompare(community, d.community) != 1 {
		return 0, nil, ErrAuthenticationMismatch
	}

	return version, community, nil
}
