package protocol

import "strings"

// Field is one tagged field: a two-character tag and its raw value.
type Field struct {
	Tag   string
	Value string
}

// Fields is an ordered list of decoded tagged fields.
type Fields []Field

// Get returns the value of the last field carrying tag. A repeated tag is
// resolved in favour of the later occurrence.
func (fs Fields) Get(tag string) (string, bool) {
	tag = strings.ToUpper(tag)
	var (
		value string
		found bool
	)
	for _, f := range fs {
		if f.Tag == tag {
			value = f.Value
			found = true
		}
	}
	return value, found
}

// Value is Get without the presence flag.
func (fs Fields) Value(tag string) string {
	v, _ := fs.Get(tag)
	return v
}

// All returns every value carried by tag, in wire order.
func (fs Fields) All(tag string) []string {
	tag = strings.ToUpper(tag)
	var out []string
	for _, f := range fs {
		if f.Tag == tag {
			out = append(out, f.Value)
		}
	}
	return out
}

// DecodeFields splits raw on the field delimiter and slices every element
// into tag and value. Elements shorter than a tag are skipped. The first
// element is decoded too; its "tag" is the response code followed by the
// positional prefix, which callers read through ReadFlags instead.
func DecodeFields(raw string) Fields {
	parts := strings.Split(raw, string(Delimiter))
	fields := make(Fields, 0, len(parts))
	for _, part := range parts {
		if len(part) < 2 {
			continue
		}
		fields = append(fields, Field{
			Tag:   strings.ToUpper(part[:2]),
			Value: part[2:],
		})
	}
	return fields
}
