package command

import (
	"reflect"
	"testing"
)

func TestTokenizeBasicWhitespace(t *testing.T) {
	got := Tokenize("Login alice s3cret", nil)
	want := []string{"Login", "alice", "s3cret"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeQuotedFieldWithSpaces(t *testing.T) {
	got := Tokenize(`say "hello there" done`, nil)
	want := []string{"say", "hello there", "done"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeBackslashEscapes(t *testing.T) {
	got := Tokenize(`a\tb`, nil)
	want := []string{"a\tb"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeEscapeHandlerExpandsNamedEscape(t *testing.T) {
	got := Tokenize(`notify %{phone} now`, func(esc string) string {
		if esc == "phone" {
			return "+46700000001"
		}
		return ""
	})
	want := []string{"notify", "+46700000001", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeEscapeHandlerExpandsShortEscape(t *testing.T) {
	got := Tokenize(`echo %P`, func(esc string) string {
		if esc == "P" {
			return "+46700000001"
		}
		return ""
	})
	want := []string{"echo", "+46700000001"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeLiteralPercent(t *testing.T) {
	got := Tokenize(`100%%done`, func(string) string { return "SHOULD-NOT-APPEAR" })
	want := []string{"100%done"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeSingleQuotesSuppressEscapeExpansion(t *testing.T) {
	got := Tokenize(`'%P literal'`, func(string) string { return "SHOULD-NOT-APPEAR" })
	want := []string{"%P literal"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestGetRangeToEnd(t *testing.T) {
	argv := []string{"cmd", "a", "b", "c"}
	if got := GetRange(argv, 1, 0); got != "a b c" {
		t.Errorf("GetRange = %q, want %q", got, "a b c")
	}
}

func TestGetRangeBounded(t *testing.T) {
	argv := []string{"cmd", "a", "b", "c"}
	if got := GetRange(argv, 1, 2); got != "a b" {
		t.Errorf("GetRange = %q, want %q", got, "a b")
	}
}

func TestGetOutOfRange(t *testing.T) {
	argv := []string{"cmd"}
	if got := Get(argv, 5); got != "" {
		t.Errorf("Get out of range = %q, want empty", got)
	}
}
