package utils

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ParseTimeParam принимает RFC3339 или дату YYYY-MM-DD. Пустое значение - nil.
func ParseTimeParam(values url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("параметр %s: ожидается RFC3339 или YYYY-MM-DD", name)
}

// ParseListParam поддерживает name[]=a&name[]=b и name=a,b.
func ParseListParam(values url.Values, name string) []string {
	var raw []string
	if arr, ok := values[name+"[]"]; ok {
		raw = arr
	} else if s := values.Get(name); s != "" {
		raw = strings.Split(s, ",")
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
