package parsers

import (
	"encoding/base64"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Encoding names reported by Decode.
const (
	EncodingBase64 = "base64"
	EncodingText   = "text"
)

// Decode turns raw file content into text. It is an explicit two-branch
// decision:
//
//  1. strip ASCII whitespace and decode as standard base64; if that succeeds
//     and yields valid UTF-8, the decoded text is used
//  2. otherwise the raw bytes are the text
//
// A leading UTF-8 byte order mark is removed in both branches.
func Decode(raw []byte) (text string, encoding string) {
	if decoded, ok := decodeBase64(raw); ok {
		return stripBOM(string(decoded)), EncodingBase64
	}
	return stripBOM(string(raw)), EncodingText
}

func decodeBase64(raw []byte) ([]byte, bool) {
	compact := strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(raw))
	if compact == "" {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, false
	}
	if !utf8.Valid(decoded) {
		return nil, false
	}
	return decoded, true
}

// SplitLines splits text on runs of CR/LF and trims each line. Empty lines
// are dropped; the returned line numbers are 1-based positions in the
// original text.
func SplitLines(text string) []Line {
	out := make([]Line, 0, strings.Count(text, "\n")+1)
	num := 0
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		// a lone CR also terminates a line
		for _, part := range strings.Split(raw, "\r") {
			num++
			line := strings.TrimSpace(part)
			if line == "" {
				continue
			}
			out = append(out, Line{Num: num, Text: line})
		}
	}
	return out
}

// Line is one trimmed, non-empty line of a rule list.
type Line struct {
	Num  int
	Text string
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
