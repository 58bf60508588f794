package fetcher

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html/charset"
)

// Decode converts body to UTF-8. A charset declared in contentType is honoured
// when it is known; undecodable byte sequences are dropped.
func Decode(body []byte, contentType string) string {
	if label := declaredCharset(contentType); label != "" {
		if enc, name := charset.Lookup(label); enc != nil && name != "utf-8" {
			decoded, err := enc.NewDecoder().Bytes(body)
			if err == nil {
				return strings.ToValidUTF8(string(decoded), "")
			}
			log.Debug("Charset decoding failed, falling back to utf-8", "charset", name, "error", err)
		}
	}
	return strings.ToValidUTF8(string(body), "")
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// SplitLines splits s at every line boundary: \n, \r, \r\n, \v, \f, \x1c,
// \x1d, \x1e, \x85, U+2028 and U+2029. A trailing boundary does not produce
// an empty final line.
func SplitLines(s string) []string {
	lines := []string{}
	start := 0
	for i := 0; i < len(s); {
		r, size := rune(s[i]), 1
		if r >= 0x80 {
			r, size = utf8.DecodeRuneInString(s[i:])
		}

		switch r {
		case '\r':
			lines = append(lines, s[start:i])
			if i+1 < len(s) && s[i+1] == '\n' {
				size = 2
			}
			start = i + size
		case '\n', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
			lines = append(lines, s[start:i])
			start = i + size
		}
		i += size
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
