package snmptrap

import (
	"errors"
	"fmt"
)

// BER identifier octets used by the SNMP message envelope.
const (
	tagInteger     = 0x02
	tagOctetString = 0x04
	tagSequence    = 0x30
)

var errBERTruncated = errors.New("truncated BER element")

// berElement is one decoded tag-length-value triple.
type berElement struct {
	tag     byte
	content []byte
}

// readBER reads the element at the start of b and returns it with the bytes
// that follow it. Lengths are accepted in short form and in long form with
// any number of leading zero octets, as BER allows. Indefinite lengths are
// not valid in SNMP messages.
func readBER(b []byte) (berElement, []byte, error) {
	if len(b) < 2 {
		return berElement{}, nil, errBERTruncated
	}
	tag := b[0]
	if tag&0x1f == 0x1f {
		return berElement{}, nil, fmt.Errorf("unsupported high tag number form 0x%02x", tag)
	}

	first := b[1]
	rest := b[2:]
	var length uint64
	switch {
	case first < 0x80:
		length = uint64(first)
	case first == 0x80:
		return berElement{}, nil, errors.New("indefinite length")
	default:
		n := int(first & 0x7f)
		if n > len(rest) {
			return berElement{}, nil, errBERTruncated
		}
		significant := 0
		for _, octet := range rest[:n] {
			if significant == 0 && octet == 0 {
				continue
			}
			significant++
			if significant > 4 {
				return berElement{}, nil, fmt.Errorf("length of %d octets is too large", n)
			}
			length = length<<8 | uint64(octet)
		}
		rest = rest[n:]
	}

	if length > uint64(len(rest)) {
		return berElement{}, nil, fmt.Errorf("%w: length %d, %d bytes available", errBERTruncated, length, len(rest))
	}
	return berElement{tag: tag, content: rest[:length]}, rest[length:], nil
}

// berInteger decodes a two's complement INTEGER, tolerating redundant
// leading octets. ok is false when the value does not fit in an int64.
func berInteger(content []byte) (value int64, ok bool, err error) {
	if len(content) == 0 {
		return 0, false, errors.New("empty INTEGER")
	}
	for len(content) > 1 &&
		((content[0] == 0x00 && content[1]&0x80 == 0) || (content[0] == 0xff && content[1]&0x80 != 0)) {
		content = content[1:]
	}
	if len(content) > 8 {
		return 0, false, nil
	}

	if content[0]&0x80 != 0 {
		value = -1
	}
	for _, octet := range content {
		value = value<<8 | int64(octet)
	}
	return value, true, nil
}
