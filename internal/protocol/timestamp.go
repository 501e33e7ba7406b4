package protocol

import (
	"strings"
	"time"
)

const timestampLayout = "20060102    150405"

// Timestamp formats t as YYYYMMDD, four spaces, HHMMSS.
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// BlankDate is an unset 18-character date field.
var BlankDate = strings.Repeat(" ", TimestampLen)
