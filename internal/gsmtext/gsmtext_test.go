package gsmtext

import "testing"

func TestRoundTripBasicSet(t *testing.T) {
	// every rune with a defined GSM mapping in the 0x00-0x7F basic set must
	// round-trip through encode then decode (the spec's round-trip law).
	for b := 0; b <= 0x7F; b++ {
		c, ok := toLatin1(b)
		if !ok {
			continue
		}
		hexStr := LatinToGSMHex(string(c))
		got := GSMHexToLatin1(hexStr)
		if got != string(c) {
			t.Errorf("round trip for code 0x%02x (%q): got %q", b, c, got)
		}
	}
}

func TestLatinToGSMHexKnownString(t *testing.T) {
	got := LatinToGSMHex("HI THERE")
	want := "4849205448455245"
	if got != want {
		t.Errorf("LatinToGSMHex(%q) = %q, want %q", "HI THERE", got, want)
	}
}

func TestGSMHexToLatin1KnownString(t *testing.T) {
	got := GSMHexToLatin1("6869207468657265")
	if got != "hi there" {
		t.Errorf("GSMHexToLatin1 = %q, want %q", got, "hi there")
	}
}

func TestLatinToGSMHexDropsUnmappedRunes(t *testing.T) {
	got := LatinToGSMHex("A€B") // euro sign has no GSM mapping
	if got != "4142" {
		t.Errorf("expected unmapped rune dropped, got %q", got)
	}
}

func TestGSMHexToLatin1ExtendedTable(t *testing.T) {
	// '[' is 0x1B3C in the extension table.
	got := GSMHexToLatin1("1B3C")
	if got != "[" {
		t.Errorf("extended table decode = %q, want %q", got, "[")
	}
}

func TestGSMHexToLatin1Tolerant(t *testing.T) {
	got := GSMHexToLatin1("4142 ")
	if got != "AB" {
		t.Errorf("whitespace-tolerant decode = %q, want %q", got, "AB")
	}
}
