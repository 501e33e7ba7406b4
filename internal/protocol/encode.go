package protocol

import "strings"

// EncodeField concatenates tag and value. value must not contain Delimiter.
func EncodeField(tag, value string) string {
	return tag + value
}

// EncodeMessage builds code + fixed + fields joined by Delimiter. fixed holds
// the positional fields in wire order and is written without separators.
func EncodeMessage(code string, fixed []string, fields ...Field) string {
	var b strings.Builder
	b.WriteString(code)
	for _, f := range fixed {
		b.WriteString(f)
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(Delimiter)
		}
		b.WriteString(EncodeField(f.Tag, f.Value))
	}
	return b.String()
}
