package shard

import "time"

// Rule 各策略独有的参数，每种策略对应一个具体类型
type Rule interface {
	Policy() Policy
	isRule()
}

// NoneRule 不分片，总是使用第一个主库
type NoneRule struct{}

// ModRule 取模分片，Partitions[r] 为余数 r 对应的节点
type ModRule struct {
	Modulus    int64
	Partitions []string
}

// Granularity 按日期拆表的粒度
type Granularity string

const (
	GranularityYear     Granularity = "year"
	GranularityHalfYear Granularity = "half-year"
	GranularitySeason   Granularity = "season"
	GranularityMonth    Granularity = "month"
)

// DateKind 日期区间的形式
type DateKind int

const (
	// DateBetween "start, end"，闭区间
	DateBetween DateKind = iota
	// DateFrom 单个日期，start 之后（含）
	DateFrom
	// DateAgo "N day|month|year ago"，相对于解析时刻的截止日期之前（含）
	DateAgo
	// DateUntil "<date> ago"，绝对截止日期之前（含）
	DateUntil
	// DateAll 匹配任意日期
	DateAll
)

// Offset 相对时间跨度，例如 "3 month"
type Offset struct {
	N    int
	Unit string // day|month|year
}

// Before 返回 t 往前推 Offset 后的时刻
func (o Offset) Before(t time.Time) time.Time {
	switch o.Unit {
	case "year":
		return t.AddDate(-o.N, 0, 0)
	case "month":
		return t.AddDate(0, -o.N, 0)
	default:
		return t.AddDate(0, 0, -o.N)
	}
}

// DateEntry 一个节点负责的日期区间
type DateEntry struct {
	Node  string
	Kind  DateKind
	Start time.Time
	End   time.Time
	Ago   Offset
}

func (e DateEntry) contains(t, now time.Time) bool {
	switch e.Kind {
	case DateAll:
		return true
	case DateFrom:
		return !t.Before(e.Start)
	case DateAgo:
		return !t.After(e.Ago.Before(now))
	case DateUntil:
		return !t.After(e.End)
	default:
		return !t.Before(e.Start) && !t.After(e.End)
	}
}

// DateRule 按日期分片，Entries 已按匹配顺序排好
type DateRule struct {
	Granularity Granularity
	Entries     []DateEntry
}

// Conds 历史归档条件的组合方式
type Conds string

const (
	CondsAny  Conds = "any"
	CondsBoth Conds = "both"
)

// HistoryRule 按归档状态分为当前库和历史库
type HistoryRule struct {
	Cutoff  *Offset
	Status  string
	Conds   Conds
	Current string
	History string
}

// RangeEntry 一个命名的数值区间，Max 为 0 表示无上界
type RangeEntry struct {
	Label string
	Min   int64
	Max   int64
	Node  string
}

func (r RangeEntry) contains(k int64) bool {
	return k >= r.Min && (r.Max == 0 || k <= r.Max)
}

// RangeRule 按数值区间分片，按 Ranges 顺序匹配
type RangeRule struct {
	Ranges []RangeEntry
}

// MapRule 按外部存储中的分配记录路由
type MapRule struct {
	Endpoint Endpoint
	// Partitions 每个主库可用的物理表编号，仅拆表时使用
	Partitions map[string][]int
}

// UDFRule 委托给注册的自定义函数
type UDFRule struct {
	Name string
	Args []string
	Func UDF
}

func (NoneRule) Policy() Policy    { return PolicyNone }
func (ModRule) Policy() Policy     { return PolicyMod }
func (DateRule) Policy() Policy    { return PolicyDate }
func (HistoryRule) Policy() Policy { return PolicyHistory }
func (RangeRule) Policy() Policy   { return PolicyRange }
func (MapRule) Policy() Policy     { return PolicyMap }
func (UDFRule) Policy() Policy     { return PolicyUDF }

func (NoneRule) isRule()    {}
func (ModRule) isRule()     {}
func (DateRule) isRule()    {}
func (HistoryRule) isRule() {}
func (RangeRule) isRule()   {}
func (MapRule) isRule()     {}
func (UDFRule) isRule()     {}
