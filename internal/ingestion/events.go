package ingestion

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// firstString returns the first non-empty string among keys.
func firstString(ev gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := ev.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// parseEventTime reads the first present key as unix seconds, unix
// milliseconds (values above 1e12) or RFC 3339. fallback is returned when
// nothing parses.
func parseEventTime(ev gjson.Result, fallback time.Time, keys ...string) time.Time {
	for _, k := range keys {
		v := ev.Get(k)
		if !v.Exists() {
			continue
		}
		var f float64
		switch v.Type {
		case gjson.Number:
			f = v.Float()
		case gjson.String:
			if parsed, err := strconv.ParseFloat(v.Str, 64); err == nil {
				f = parsed
			} else if ts, err := time.Parse(time.RFC3339Nano, v.Str); err == nil {
				return ts
			} else {
				continue
			}
		default:
			continue
		}
		if f <= 0 {
			continue
		}
		if f > 1e12 {
			return time.UnixMilli(int64(f))
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9))
	}
	return fallback
}

// seenSet is a bounded insertion-ordered set.
type seenSet struct {
	limit int
	items map[string]struct{}
	order []string
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 10000
	}
	return &seenSet{limit: limit, items: make(map[string]struct{}, limit)}
}

// Add inserts key. added is false when key was present; evicted names the
// oldest key dropped to make room.
func (s *seenSet) Add(key string) (added bool, evicted string) {
	if _, ok := s.items[key]; ok {
		return false, ""
	}
	s.items[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > s.limit {
		evicted = s.order[0]
		s.order = s.order[1:]
		delete(s.items, evicted)
	}
	return true, evicted
}

func (s *seenSet) Contains(key string) bool {
	_, ok := s.items[key]
	return ok
}

func (s *seenSet) Len() int { return len(s.order) }

// Items returns the keys oldest first.
func (s *seenSet) Items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
