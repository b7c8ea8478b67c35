package tsdb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WritePoint queues a point stamped with the current time.
// It satisfies relay.PointWriter.
//
// VictoriaMetrics stores each field as its own series named
// <measurement>_<field>, so relay_publish with a bytes field becomes
// relay_publish_bytes.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if len(fields) == 0 {
		return
	}
	c.addLine(formatLineProtocol(measurement, tags, fields, timestamp))
}

// formatLineProtocol renders one point:
//
//	measurement,tag1=v1,tag2=v2 field1=v1,field2=v2 timestamp_ns
//
// Tags and fields are sorted so output is deterministic.
func formatLineProtocol(measurement string, tags map[string]string, fields map[string]interface{}, t time.Time) string {
	var b strings.Builder

	b.WriteString(escapeMeasurement(measurement))

	for _, k := range sortedKeys(tags) {
		if tags[k] == "" {
			continue // empty tag values are invalid line protocol
		}
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	b.WriteByte(' ')
	for i, k := range sortedKeys(fields) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(formatField(fields[k]))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(t.UnixNano(), 10))

	return b.String()
}

// formatField renders a field value with the line protocol type suffix.
func formatField(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int:
		return strconv.Itoa(val) + "i"
	case int64:
		return strconv.FormatInt(val, 10) + "i"
	case uint64:
		return strconv.FormatUint(val, 10) + "u"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return strconv.Quote(val)
	case time.Duration:
		return strconv.FormatInt(int64(val), 10) + "i"
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeTag escapes commas, equals signs and spaces in tag keys, tag
// values and field keys. Newlines are stripped so a peer address can
// never inject a second line.
func escapeTag(s string) string {
	s = stripNewlines(s)
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	return s
}

// escapeMeasurement escapes commas and spaces in measurement names.
func escapeMeasurement(s string) string {
	s = stripNewlines(s)
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	return s
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
