package command

import "strings"

// EscapeHandler resolves a %-escape found while tokenizing an external
// command's argument template, e.g. "P" for the sender's phone number or
// "1-3" for a range of the inbound message's own arguments. It returns the
// empty string for an escape it does not recognize.
type EscapeHandler func(escape string) string

// Tokenize splits s into shell-like argv fields: whitespace separates
// fields, matching single or double quotes group a field (the quote
// characters themselves are removed), and a backslash escapes the
// following character using its usual C meaning (\n, \t, ...). If handler
// is non-nil, an unquoted or double-quoted "%x" or "%{name}" sequence is
// replaced by handler's return value; a bare "%%" yields a literal "%".
// Tokenize never returns an error: malformed quoting or a trailing
// backslash is absorbed rather than rejected, exactly as the original
// tokenizer does.
func Tokenize(s string, handler EscapeHandler) []string {
	var fields []string
	var buf strings.Builder
	var delim byte
	inField := false

	runes := []rune(s)
	i := 0
	for i < len(runes) {
		r := runes[i]

		if delim == 0 && isSpace(r) {
			if inField {
				fields = append(fields, buf.String())
				buf.Reset()
				inField = false
			}
			i++
			continue
		}
		inField = true

		switch r {
		case '"', '\'':
			if delim == 0 {
				delim = byte(r)
			} else if delim == byte(r) {
				delim = 0
			} else {
				buf.WriteRune(r)
			}
			i++

		case '\\':
			i++
			if i >= len(runes) {
				break
			}
			buf.WriteRune(unescape(runes[i]))
			i++

		case '%':
			if handler != nil && delim != '\'' {
				i++
				if i >= len(runes) {
					break
				}
				if runes[i] == '%' {
					buf.WriteByte('%')
					i++
					break
				}
				var esc string
				if runes[i] == '{' {
					i++
					start := i
					for i < len(runes) && runes[i] != '}' {
						i++
					}
					esc = string(runes[start:i])
					if i < len(runes) {
						i++
					}
				} else {
					esc = string(runes[i])
					i++
				}
				buf.WriteString(handler(esc))
			} else {
				buf.WriteRune(r)
				i++
			}

		default:
			buf.WriteRune(r)
			i++
		}
	}
	if inField {
		fields = append(fields, buf.String())
	}
	return fields
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func unescape(r rune) rune {
	switch r {
	case 'a':
		return '\a'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return '\v'
	default:
		return r
	}
}

// Get returns argv[idx], or "" if idx is out of range.
func Get(argv []string, idx int) string {
	if idx < 0 || idx >= len(argv) {
		return ""
	}
	return argv[idx]
}

// GetRange returns argv[start:stop] (inclusive, 1-based like the rest of
// this package's escape vocabulary) joined by single spaces. stop == 0
// means "to the end".
func GetRange(argv []string, start, stop int) string {
	if start < 0 || start >= len(argv) {
		return ""
	}
	end := len(argv)
	if stop > 0 && stop+1 < end {
		end = stop + 1
	}
	return strings.Join(argv[start:end], " ")
}
