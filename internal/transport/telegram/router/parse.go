package router

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateTimeLayout = "2006-01-02 15:04"

// parseStartPayload extracts the event id from a "/start event_<id>" deep
// link. The bare "/start" (or any unrecognized payload) returns false.
func parseStartPayload(text string) (int64, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "event_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "event_"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseCallback splits callback data into an action and an optional trailing
// numeric id: "event:sub:7" -> ("event:sub", 7), "menu" -> ("menu", 0).
func parseCallback(data string) (string, int64) {
	i := strings.LastIndex(data, ":")
	if i < 0 {
		return data, 0
	}
	id, err := strconv.ParseInt(data[i+1:], 10, 64)
	if err != nil {
		return data, 0
	}
	return data[:i], id
}

// parseDateTime parses "YYYY-MM-DD HH:MM" in the given zone.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateTimeLayout, strings.TrimSpace(s), loc)
}

// parseLeadOffsets parses one or more reminder offsets in minutes, separated
// by commas or spaces. Every value must be a positive integer.
func parseLeadOffsets(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no values")
	}
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not a whole number", f)
		}
		if n <= 0 {
			return nil, fmt.Errorf("%d is not positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}
