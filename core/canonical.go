package core

import (
	"bytes"
	"strconv"
)

// CanonicalBytes mirrors the JSON shape of Registration and Record but fixes
// field order and default-fills TTL at a single point, per §4.2. Every
// signer and verifier must go through it so a deviation in field order
// never silently breaks cross-node signatures.

// CanonicalBytes returns the deterministic byte sequence that is signed and
// verified for reg. It deliberately hand-writes JSON rather than relying on
// encoding/json struct-tag ordering, because Go's json package does not
// guarantee field order is preserved across versions and canonical
// serialization must be exact and stable.
func CanonicalBytes(reg Registration) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"name":`)
	writeJSONString(&buf, reg.Name)
	buf.WriteByte(',')

	buf.WriteString(`"owner":`)
	writeJSONString(&buf, reg.Owner)
	buf.WriteByte(',')

	buf.WriteString(`"records":[`)
	for i, r := range reg.Records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		buf.WriteString(`"type":`)
		writeJSONString(&buf, string(r.Type))
		buf.WriteString(`,"value":`)
		writeJSONString(&buf, r.Value)
		buf.WriteString(`,"ttl":`)
		buf.WriteString(strconv.FormatInt(r.normalizedTTL(), 10))
		buf.WriteByte('}')
	}
	buf.WriteString(`],`)

	buf.WriteString(`"timestamp":`)
	buf.WriteString(strconv.FormatInt(reg.TimestampMs, 10))
	buf.WriteByte(',')

	buf.WriteString(`"expires":`)
	buf.WriteString(strconv.FormatInt(reg.ExpiresMs, 10))
	buf.WriteByte(',')

	buf.WriteString(`"nonce":`)
	writeJSONString(&buf, reg.Nonce)

	buf.WriteByte('}')
	return buf.Bytes()
}

// writeJSONString writes s as a minimal-escaping JSON string literal. Only
// the characters that would otherwise break JSON syntax are escaped, so the
// same Go string always produces the same bytes regardless of standard
// library JSON-encoder version skew.
func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte("0123456789abcdef"[r>>4])
				buf.WriteByte("0123456789abcdef"[r&0xf])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// TransferAuthBytes returns the canonical payload signed by the current
// owner to authorize a transfer: the tuple (name, new_owner, now_ms).
func TransferAuthBytes(name, newOwner string, nowMs int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"name":`)
	writeJSONString(&buf, name)
	buf.WriteString(`,"new_owner":`)
	writeJSONString(&buf, newOwner)
	buf.WriteString(`,"timestamp":`)
	buf.WriteString(strconv.FormatInt(nowMs, 10))
	buf.WriteByte('}')
	return buf.Bytes()
}
