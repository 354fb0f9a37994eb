package shard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jinzhu/now"
	"github.com/spf13/cast"
)

// nodeFields 节点的 map 形式
type nodeFields struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// parseNode 解析 "host:port:user:password[:database]" 或 map 形式的节点声明
func parseNode(name string, raw any) (Node, error) {
	var f nodeFields
	switch v := raw.(type) {
	case string:
		parts := strings.Split(strings.TrimSpace(v), ":")
		if len(parts) != 4 && len(parts) != 5 {
			return Node{}, fmt.Errorf("node %s: want host:port:user:password[:database], got %d fields", name, len(parts))
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return Node{}, fmt.Errorf("node %s: invalid port %q", name, parts[1])
		}
		f = nodeFields{Host: parts[0], Port: port, User: parts[2], Password: parts[3]}
		if len(parts) == 5 {
			f.Database = parts[4]
		}
	default:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           &f,
		})
		if err != nil {
			return Node{}, err
		}
		if err := dec.Decode(raw); err != nil {
			return Node{}, fmt.Errorf("node %s: %w", name, err)
		}
	}

	if f.Host == "" {
		return Node{}, fmt.Errorf("node %s: host is required", name)
	}
	if f.Port <= 0 || f.Port > 65535 {
		return Node{}, fmt.Errorf("node %s: invalid port %d", name, f.Port)
	}
	return Node{
		Name:     name,
		Host:     f.Host,
		Port:     f.Port,
		User:     f.User,
		Password: f.Password,
		Database: f.Database,
	}, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseWeights 解析 "db0:3, db1" 或 {db0: 3} 形式的节点列表
//
// 字符串形式保留声明顺序，map 形式按节点名排序。
// 无法解析或非正的权重按 1 处理。
func parseWeights(raw any) ([]WeightedNode, error) {
	var out []WeightedNode
	seen := make(map[string]bool)
	add := func(name string, weight any) error {
		name = normalizeName(name)
		if name == "" {
			return nil
		}
		if seen[name] {
			return fmt.Errorf("node %s listed twice", name)
		}
		seen[name] = true
		w, err := cast.ToIntE(weight)
		if err != nil || w <= 0 {
			w = 1
		}
		out = append(out, WeightedNode{Name: name, Weight: w})
		return nil
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, item := range strings.Split(v, ",") {
			name, weight, _ := strings.Cut(strings.TrimSpace(item), ":")
			if err := add(name, strings.TrimSpace(weight)); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, item := range v {
			if err := add(cast.ToString(item), 1); err != nil {
				return nil, err
			}
		}
	case []string:
		for _, item := range v {
			if err := add(item, 1); err != nil {
				return nil, err
			}
		}
	default:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported node list %T", raw)
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := add(name, m[name]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// parseIDList 解析 "0-3, 5, 8-9" 形式的编号列表，区间两端包含
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lo, hi, err := parseBounds(item)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(item[1:], "-") {
			hi = lo
		}
		if lo > hi {
			return nil, fmt.Errorf("range %q: start greater than end", item)
		}
		if hi-lo >= maxModulus {
			return nil, fmt.Errorf("range %q is too large", item)
		}
		for i := lo; i <= hi; i++ {
			ids = append(ids, i)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty id list %q", s)
	}
	return ids, nil
}

// parseBounds 解析 "min" 或 "min-max"，min 可为负数，单值时 max 为 0
func parseBounds(s string) (int64, int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty bounds")
	}
	lo, hi := s, ""
	if i := strings.Index(s[1:], "-"); i >= 0 {
		lo, hi = s[:i+1], s[i+2:]
	}
	min, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", lo)
	}
	if hi == "" {
		return min, 0, nil
	}
	max, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", hi)
	}
	return min, max, nil
}

// parseOffset 解析 "N day|month|year"，单位可带复数 s
func parseOffset(s string) (Offset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, unit := range []string{"day", "month", "year"} {
		before, after, ok := strings.Cut(s, unit)
		if !ok || (after != "" && after != "s") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(before))
		if err != nil || n <= 0 {
			return Offset{}, fmt.Errorf("invalid offset %q", s)
		}
		return Offset{N: n, Unit: unit}, nil
	}
	return Offset{}, fmt.Errorf("invalid offset %q, want N day|month|year", s)
}

// dateFormats 只保留带四位年份的格式
//
// 缺少年份或日期的格式（"15:4"、"1-2" 等）会由 now 用当前时刻补全，
// 结果随调用时间漂移，不能作为分片依据。
var dateFormats = func() []string {
	var out []string
	for _, f := range now.TimeFormats {
		if strings.Contains(f, "2006") {
			out = append(out, f)
		}
	}
	return out
}()

func dateParser(loc *time.Location) *now.Config {
	return &now.Config{TimeLocation: loc, TimeFormats: dateFormats}
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := dateParser(loc).Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	if t.Unix() <= 0 {
		return time.Time{}, fmt.Errorf("date %q before epoch", s)
	}
	return t, nil
}

// parseDateEntry 解析日期区间声明：
//
//	all                     任意日期
//	3 month ago             解析时刻往前 3 个月之前（含）
//	2020-01-01 ago          2020-01-01 之前（含）
//	2024-01-01              2024-01-01 之后（含）
//	2023-01-01, 2023-12-31  闭区间
func parseDateEntry(node, s string, loc *time.Location) (DateEntry, error) {
	e := DateEntry{Node: node}
	v := strings.TrimSpace(s)
	lower := strings.ToLower(v)

	if lower == "all" {
		e.Kind = DateAll
		return e, nil
	}

	if strings.HasSuffix(lower, " ago") {
		expr := strings.TrimSpace(v[:len(v)-len(" ago")])
		if off, err := parseOffset(expr); err == nil {
			e.Kind, e.Ago = DateAgo, off
			return e, nil
		}
		t, err := parseDate(expr, loc)
		if err != nil {
			return e, err
		}
		e.Kind, e.End = DateUntil, t
		return e, nil
	}

	parts := strings.Split(v, ",")
	switch len(parts) {
	case 1:
		t, err := parseDate(parts[0], loc)
		if err != nil {
			return e, err
		}
		e.Kind, e.Start = DateFrom, t
	case 2:
		start, err := parseDate(parts[0], loc)
		if err != nil {
			return e, err
		}
		end, err := parseDate(parts[1], loc)
		if err != nil {
			return e, err
		}
		if start.After(end) {
			return e, fmt.Errorf("date range %q: start after end", s)
		}
		e.Kind, e.Start, e.End = DateBetween, start, end
	default:
		return e, fmt.Errorf("invalid date range %q", s)
	}
	return e, nil
}

// parseRanges 解析区间声明，返回按匹配顺序排列的区间（尚未绑定节点）
func parseRanges(raw any) ([]RangeEntry, error) {
	var out []RangeEntry
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("storebyrange is required")
	case string:
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			label, bounds, ok := strings.Cut(item, ":")
			if !ok {
				return nil, fmt.Errorf("range %q: want label:min[-max]", item)
			}
			min, max, err := parseBounds(bounds)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", item, err)
			}
			out = append(out, RangeEntry{Label: strings.TrimSpace(label), Min: min, Max: max})
		}
	default:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported storebyrange %T", raw)
		}
		for label, bounds := range m {
			min, max, err := boundsOf(bounds)
			if err != nil {
				return nil, fmt.Errorf("range %s: %w", label, err)
			}
			out = append(out, RangeEntry{Label: label, Min: min, Max: max})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Min != out[j].Min {
				return out[i].Min < out[j].Min
			}
			return out[i].Label < out[j].Label
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("storebyrange is empty")
	}
	seen := make(map[string]bool)
	for _, r := range out {
		key := normalizeName(r.Label)
		if key == "" {
			return nil, fmt.Errorf("range label is empty")
		}
		if seen[key] {
			return nil, fmt.Errorf("range %s declared twice", r.Label)
		}
		seen[key] = true
		if r.Max != 0 && r.Max < r.Min {
			return nil, fmt.Errorf("range %s: max %d below min %d", r.Label, r.Max, r.Min)
		}
	}
	return out, nil
}

// boundsOf 解析 map 形式中的单个区间：[min, max]、[min]、"min-max" 或单个数值
func boundsOf(v any) (int64, int64, error) {
	switch b := v.(type) {
	case string:
		return parseBounds(b)
	case []any:
		if len(b) == 0 || len(b) > 2 {
			return 0, 0, fmt.Errorf("want [min, max]")
		}
		min, err := cast.ToInt64E(b[0])
		if err != nil {
			return 0, 0, err
		}
		if len(b) == 1 {
			return min, 0, nil
		}
		max, err := cast.ToInt64E(b[1])
		return min, max, err
	case []int:
		items := make([]any, len(b))
		for i, n := range b {
			items[i] = n
		}
		return boundsOf(items)
	case []int64:
		items := make([]any, len(b))
		for i, n := range b {
			items[i] = n
		}
		return boundsOf(items)
	default:
		min, err := cast.ToInt64E(b)
		return min, 0, err
	}
}

// parseUDFRef 解析 "name(arg1, arg2)"
func parseUDFRef(s string) (string, []string, error) {
	open := strings.Index(s, "(")
	end := strings.LastIndex(s, ")")
	if open < 0 || end < open {
		return "", nil, fmt.Errorf("udf %q: want name(args...)", s)
	}
	name := strings.TrimSpace(s[:open])
	if name == "" {
		return "", nil, fmt.Errorf("udf %q: empty name", s)
	}
	if strings.TrimSpace(s[end+1:]) != "" {
		return "", nil, fmt.Errorf("udf %q: trailing characters", s)
	}

	var args []string
	if inner := strings.TrimSpace(s[open+1 : end]); inner != "" {
		for _, arg := range strings.Split(inner, ",") {
			args = append(args, strings.TrimSpace(arg))
		}
	}
	return name, args, nil
}
