// Package gsmtext converts between Latin-1 text and the GSM 7-bit default
// alphabet, wire-encoded as ASCII hex pairs the way a modem configured for
// AT+CSCS="HEX" expects. It is a boundary helper: two pure functions and
// nothing else, per the scope spec.md places on character-set handling.
package gsmtext

import (
	"encoding/hex"
	"strings"
)

type pair struct {
	c rune
	v int
}

// table is the GSM 7-bit default alphabet, basic set and the 0x1B-prefixed
// extension table, keyed by Latin-1 rune. Where a rune appears twice (as in
// the original table, for '§') the first entry wins on encode, matching the
// linear-scan semantics of the reference implementation.
var table = []pair{
	{'@', 0x00}, {'£', 0x01}, {'$', 0x02}, {'¥', 0x03}, {'è', 0x04},
	{'é', 0x05}, {'ù', 0x06}, {'ì', 0x07}, {'ò', 0x08}, {'Ç', 0x09},
	{'\n', 0x0A}, {'Ø', 0x0B}, {'ø', 0x0C}, {'\r', 0x0D}, {'Å', 0x0E}, {'å', 0x0F},
	{'_', 0x11},
	{'Æ', 0x1C}, {'æ', 0x1D},
	{'É', 0x1F},
	{' ', 0x20}, {'!', 0x21}, {'"', 0x22}, {'#', 0x23}, {'¤', 0x24},
	{'%', 0x25}, {'&', 0x26}, {'\'', 0x27}, {'(', 0x28}, {')', 0x29},
	{'*', 0x2a}, {'+', 0x2b}, {',', 0x2c}, {'-', 0x2d}, {'.', 0x2e}, {'/', 0x2f},
	{'0', 0x30}, {'1', 0x31}, {'2', 0x32}, {'3', 0x33}, {'4', 0x34},
	{'5', 0x35}, {'6', 0x36}, {'7', 0x37}, {'8', 0x38}, {'9', 0x39},
	{':', 0x3a}, {';', 0x3b}, {'<', 0x3c}, {'=', 0x3d}, {'>', 0x3e}, {'?', 0x3f},
	{'¡', 0x40},
	{'A', 0x41}, {'B', 0x42}, {'C', 0x43}, {'D', 0x44}, {'E', 0x45},
	{'F', 0x46}, {'G', 0x47}, {'H', 0x48}, {'I', 0x49}, {'J', 0x4a},
	{'K', 0x4b}, {'L', 0x4c}, {'M', 0x4d}, {'N', 0x4e}, {'O', 0x4f},
	{'P', 0x50}, {'Q', 0x51}, {'R', 0x52}, {'S', 0x53}, {'T', 0x54},
	{'U', 0x55}, {'V', 0x56}, {'W', 0x57}, {'X', 0x58}, {'Y', 0x59}, {'Z', 0x5a},
	{'Ä', 0x5b}, {'Ö', 0x5c}, {'Ñ', 0x5d}, {'Ü', 0x5e}, {'§', 0x5f},
	{'a', 0x61}, {'b', 0x62}, {'c', 0x63}, {'d', 0x64}, {'e', 0x65},
	{'f', 0x66}, {'g', 0x67}, {'h', 0x68}, {'i', 0x69}, {'j', 0x6a},
	{'k', 0x6b}, {'l', 0x6c}, {'m', 0x6d}, {'n', 0x6e}, {'o', 0x6f},
	{'p', 0x70}, {'q', 0x71}, {'r', 0x72}, {'s', 0x73}, {'t', 0x74},
	{'u', 0x75}, {'v', 0x76}, {'w', 0x77}, {'x', 0x78}, {'y', 0x79}, {'z', 0x7a},
	{'ä', 0x7b}, {'ö', 0x7c}, {'ñ', 0x7d}, {'ü', 0x7e}, {'à', 0x7f},
	{'§', 0x1B65}, {'\f', 0x1B0A}, {'[', 0x1B3C}, {'\\', 0x1B2F}, {']', 0x1B3E},
	{'^', 0x1B14}, {'{', 0x1B28}, {'|', 0x1B40}, {'}', 0x1B29}, {'~', 0x1B3D},
}

func toGSM(c rune) (int, bool) {
	for _, p := range table {
		if p.c == c {
			return p.v, true
		}
	}
	return 0, false
}

func toLatin1(v int) (rune, bool) {
	for _, p := range table {
		if p.v == v {
			return p.c, true
		}
	}
	return 0, false
}

// LatinToGSMHex encodes a Latin-1 string as the GSM 7-bit alphabet, wire
// encoded as upper-case ASCII hex (two hex digits per basic-set code point,
// four for codes in the extension table). Runes with no GSM mapping are
// dropped, matching the reference implementation.
func LatinToGSMHex(s string) string {
	var b strings.Builder
	for _, c := range s {
		v, ok := toGSM(c)
		if !ok {
			continue
		}
		if v > 0xFF {
			b.WriteString(strings.ToUpper(hexPad(v, 4)))
		} else {
			b.WriteString(strings.ToUpper(hexPad(v, 2)))
		}
	}
	return b.String()
}

func hexPad(v, width int) string {
	s := hex.EncodeToString([]byte{byte(v >> 8), byte(v)})
	if width == 2 {
		return s[len(s)-2:]
	}
	return s
}

// GSMHexToLatin1 decodes a hex-encoded GSM 7-bit payload back to Latin-1.
// Malformed trailing bytes are ignored, matching the reference
// implementation's tolerant sscanf-based decoder.
func GSMHexToLatin1(s string) string {
	var b strings.Builder
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		// fall back to decoding as many well-formed leading pairs as possible
		raw = bestEffortDecode(s)
	}
	for i := 0; i < len(raw); i++ {
		v := int(raw[i])
		if v == 0x1B && i+1 < len(raw) {
			i++
			v = 0x1B00 | int(raw[i])
		}
		if c, ok := toLatin1(v); ok {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func bestEffortDecode(s string) []byte {
	var out []byte
	for i := 0; i+1 < len(s); i += 2 {
		b, err := hex.DecodeString(s[i : i+2])
		if err != nil {
			break
		}
		out = append(out, b...)
	}
	return out
}
