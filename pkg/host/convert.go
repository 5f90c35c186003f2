package host

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/lang"
	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a Go value into a Lua value. Lua values pass through.
func ToLua(L *lua.LState, v any) (lua.LValue, error) {
	if lv, ok := v.(lua.LValue); ok {
		return lv, nil
	}
	n, err := lang.Normalize(v)
	if err != nil {
		return lua.LNil, err
	}
	return toLua(L, n), nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for _, k := range sortedNames(x) {
			t.RawSetString(k, toLua(L, x[k]))
		}
		return t
	}
	return lua.LNil
}

// FromLua converts a Lua value into the JSON data model. Functions and other
// values without a data representation are returned as the Lua value itself.
func FromLua(v lua.LValue) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(x)
	case *lua.LTable:
		return fromTable(x)
	}
	return v
}

func fromTable(t *lua.LTable) any {
	total := 0
	t.ForEach(func(_, _ lua.LValue) { total++ })

	if n := t.MaxN(); n > 0 && n == total {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, FromLua(t.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any, total)
	t.ForEach(func(k, v lua.LValue) {
		out[keyString(k)] = FromLua(v)
	})
	return out
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		f := float64(n)
		if f == math.Trunc(f) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return k.String()
}

// IsData reports whether v survives a JSON round trip.
func IsData(v any) bool {
	_, err := lang.Normalize(v)
	return err == nil
}

// Format renders a value for display.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(x)
	case lua.LValue:
		return x.String()
	}
	if n, err := lang.Normalize(v); err == nil {
		data, err := json.Marshal(n)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}

// FormatDict renders a dictionary as sorted `key: value` lines.
func FormatDict(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, Format(d[k]))
	}
	return b.String()
}
