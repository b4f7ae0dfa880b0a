package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// orderedKeys lists keys from order first, then the remaining ones alphabetically.
func (f fields) orderedKeys(order []string) []string {
	keys := make([]string, 0, len(f))
	placed := make(map[string]bool, len(f))
	for _, k := range order {
		if _, ok := f[k]; ok && !placed[k] {
			keys = append(keys, k)
			placed[k] = true
		}
	}
	rest := make([]string, 0, len(f)-len(keys))
	for k := range f {
		if !placed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (f fields) encodeJSON(order []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, k := range f.orderedKeys(order) {
		v, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func (f fields) encodeKV(order []string) []byte {
	buf := make([]byte, 0, 256)
	for i, k := range f.orderedKeys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = appendKV(buf, f[k])
	}
	return buf
}

func appendKV(buf []byte, v any) []byte {
	var s string
	switch x := v.(type) {
	case bool:
		return strconv.AppendBool(buf, x)
	case int64:
		return strconv.AppendInt(buf, x, 10)
	case uint64:
		return strconv.AppendUint(buf, x, 10)
	case float64:
		return strconv.AppendFloat(buf, x, 'g', -1, 64)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
