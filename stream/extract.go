package stream

import "strings"

// Extract returns the best-effort decoded value of the quoted string field
// named field inside raw, where raw may be a syntactically incomplete JSON
// text (a prefix of a document still being streamed). If the closing quote of
// the value has not arrived yet, the decoded prefix seen so far is returned;
// successive extensions of raw therefore extend the previous result. Returns
// "" when the key or its opening quote is absent.
func Extract(raw, field string) string {

	key := `"` + field + `"`
	i := strings.Index(raw, key)
	if i < 0 {
		return ""
	}
	rest := raw[i+len(key):]
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return ""
	}
	open := strings.IndexByte(rest[sep+1:], '"')
	if open < 0 {
		return ""
	}

	return decodeStringPrefix(rest[sep+1+open+1:])
}

// decodeStringPrefix walks s from just inside the opening quote of a JSON
// string, stopping at the first unescaped closing quote or at end of input.
// Escapes: \" -> ", \n -> newline, \\ -> \, any other \x passes x through.
func decodeStringPrefix(s string) string {

	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '"' {
			break
		}
		if c == '\\' {
			if i+1 >= len(s) {
				// backslash is the last byte seen so far; its meaning
				// arrives with the next fragment
				break
			}
			if n := s[i+1]; n == 'n' {
				b.WriteByte('\n')
			} else {
				b.WriteByte(n)
			}
			i += 2
			continue
		}
		b.WriteByte(c)
		i++
	}

	return b.String()
}
