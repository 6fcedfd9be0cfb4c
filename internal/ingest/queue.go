package ingest

import (
	"bytes"
	"encoding/json"
	"math"
)

// QueueShape enumerates the queue payloads seen in live data.
type QueueShape int

const (
	// QueueAbsent is a missing or null queue.
	QueueAbsent QueueShape = iota
	// QueueMinutes is a bare number of minutes (legacy feeds).
	QueueMinutes
	// QueueStandby is {"STANDBY": {"waitTime": n}}.
	QueueStandby
	// QueuePaidStandby is {"PAID_STANDBY": {"waitTime": n}}.
	QueuePaidStandby
	// QueueFlat is {"waitTime": n}.
	QueueFlat
	// QueueUnrecognized is anything else, including objects without a numeric wait.
	QueueUnrecognized
)

func (s QueueShape) String() string {
	switch s {
	case QueueAbsent:
		return "absent"
	case QueueMinutes:
		return "minutes"
	case QueueStandby:
		return "standby"
	case QueuePaidStandby:
		return "paid_standby"
	case QueueFlat:
		return "flat"
	default:
		return "unrecognized"
	}
}

// Queue is a parsed queue payload. Minutes is meaningful only for shapes
// that carry a wait.
type Queue struct {
	Shape   QueueShape
	Minutes int
}

// Wait returns the wait in minutes, or nil when the shape carries none.
func (q Queue) Wait() *int {
	switch q.Shape {
	case QueueMinutes, QueueStandby, QueuePaidStandby, QueueFlat:
		m := q.Minutes
		return &m
	default:
		return nil
	}
}

// ParseQueue classifies raw. Object payloads are checked in priority order
// STANDBY, PAID_STANDBY, then a flat waitTime; the first numeric one wins.
// Fractional waits are rounded to whole minutes; numbers outside the int32
// range are not waits.
func ParseQueue(raw json.RawMessage) Queue {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Queue{Shape: QueueAbsent}
	}

	if m, ok := number(raw); ok {
		return Queue{Shape: QueueMinutes, Minutes: m}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Queue{Shape: QueueUnrecognized}
	}

	if m, ok := nestedWait(obj, "STANDBY"); ok {
		return Queue{Shape: QueueStandby, Minutes: m}
	}
	if m, ok := nestedWait(obj, "PAID_STANDBY"); ok {
		return Queue{Shape: QueuePaidStandby, Minutes: m}
	}
	if m, ok := number(obj["waitTime"]); ok {
		return Queue{Shape: QueueFlat, Minutes: m}
	}

	return Queue{Shape: QueueUnrecognized}
}

// ExtractWait returns the wait carried by raw, rounded to whole minutes, or nil.
func ExtractWait(raw json.RawMessage) *int {
	return ParseQueue(raw).Wait()
}

func nestedWait(obj map[string]json.RawMessage, key string) (int, bool) {
	inner, ok := obj[key]
	if !ok {
		return 0, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(inner, &fields); err != nil {
		return 0, false
	}
	return number(fields["waitTime"])
}

// number accepts only finite JSON numbers that fit in an int32, rounded to
// whole minutes. Strings and null are not waits.
func number(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	r := math.Round(f)
	if math.IsNaN(r) || math.IsInf(r, 0) || r > math.MaxInt32 || r < math.MinInt32 {
		return 0, false
	}
	return int(r), true
}
