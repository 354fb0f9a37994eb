package shard

import (
	"sort"
	"strings"
)

// maxModulus 取模分片的最大模数，也是编号区间展开的上限
const maxModulus = 1 << 20

// Build 将原始配置构建为只读拓扑
//
// 任何一张表或一个节点的声明有误都会使整个构建失败，返回的错误均包裹 ErrInvalidConfig。
func Build(settings *Settings, opts ...Option) (*Topology, error) {
	o := applyOptions(opts)
	return build(settings, o)
}

func build(settings *Settings, o *options) (*Topology, error) {
	if settings == nil {
		return nil, configError("", "settings is nil")
	}

	topo := &Topology{
		Nodes:  make(map[string]Node, len(settings.Nodes)),
		Tables: make(map[string]*Descriptor, len(settings.Tables)),
		folded: make(map[string]*Descriptor, len(settings.Tables)),
	}

	for _, raw := range sortedKeys(settings.Nodes) {
		name := normalizeName(raw)
		if name == "" {
			return nil, configError("", "empty node name")
		}
		if _, dup := topo.Nodes[name]; dup {
			return nil, configError("", "node %s declared twice", name)
		}
		node, err := parseNode(name, settings.Nodes[raw])
		if err != nil {
			return nil, configError("", "%v", err)
		}
		topo.Nodes[name] = node
	}

	for _, table := range sortedKeys(settings.Tables) {
		if strings.TrimSpace(table) == "" {
			return nil, configError("", "empty table name")
		}
		b := &tableBuilder{table: table, spec: settings.Tables[table], topo: topo, opts: o}
		desc, err := b.build()
		if err != nil {
			return nil, err
		}
		folded := strings.ToLower(table)
		if _, dup := topo.folded[folded]; dup {
			return nil, configError(table, "conflicts with another table differing only in case")
		}
		topo.Tables[table] = desc
		topo.folded[folded] = desc
	}
	return topo, nil
}

type tableBuilder struct {
	table     string
	spec      TableSpec
	topo      *Topology
	opts      *options
	primaries map[string]bool
}

func (b *tableBuilder) errorf(format string, args ...any) error {
	return configError(b.table, format, args...)
}

func (b *tableBuilder) build() (*Descriptor, error) {
	policy, err := ParsePolicy(b.spec.ShardType)
	if err != nil {
		return nil, b.errorf("%v", err)
	}

	desc := &Descriptor{Table: b.table, Policy: policy, SplitTable: b.spec.DiffTable}

	desc.Primaries, err = parseWeights(b.spec.Masters)
	if err != nil {
		return nil, b.errorf("masters: %v", err)
	}
	if policy != PolicyUDF && len(desc.Primaries) == 0 {
		return nil, b.errorf("masters isn't set")
	}
	b.primaries = make(map[string]bool, len(desc.Primaries))
	for _, p := range desc.Primaries {
		if err := b.requireNode(p.Name); err != nil {
			return nil, err
		}
		b.primaries[p.Name] = true
	}

	if desc.Replicas, err = b.replicas(); err != nil {
		return nil, err
	}

	switch policy {
	case PolicyNone:
		desc.Rule = NoneRule{}
	case PolicyMod:
		desc.Rule, err = b.modRule()
	case PolicyDate:
		desc.Rule, err = b.dateRule()
	case PolicyHistory:
		desc.Rule, err = b.historyRule()
	case PolicyRange:
		desc.Rule, err = b.rangeRule()
	case PolicyMap:
		desc.Rule, err = b.mapRule(desc)
	case PolicyUDF:
		desc.Rule, err = b.udfRule()
	}
	if err != nil {
		return nil, err
	}
	return desc, nil
}

func (b *tableBuilder) requireNode(name string) error {
	if _, ok := b.topo.Nodes[name]; !ok {
		return b.errorf("unknown node %s", name)
	}
	return nil
}

func (b *tableBuilder) requirePrimary(section, name string) (string, error) {
	name = normalizeName(name)
	if err := b.requireNode(name); err != nil {
		return "", err
	}
	if !b.primaries[name] {
		return "", b.errorf("%s: node %s is not a master", section, name)
	}
	return name, nil
}

func (b *tableBuilder) replicas() (map[string][]WeightedNode, error) {
	if len(b.spec.Slaves) == 0 {
		return nil, nil
	}
	out := make(map[string][]WeightedNode, len(b.spec.Slaves))
	for _, raw := range sortedKeys(b.spec.Slaves) {
		primary, err := b.requirePrimary("slaves", raw)
		if err != nil {
			return nil, err
		}
		nodes, err := parseWeights(b.spec.Slaves[raw])
		if err != nil {
			return nil, b.errorf("slaves of %s: %v", primary, err)
		}
		for _, n := range nodes {
			if err := b.requireNode(n.Name); err != nil {
				return nil, err
			}
		}
		if len(nodes) > 0 {
			out[primary] = nodes
		}
	}
	return out, nil
}

func (b *tableBuilder) modRule() (Rule, error) {
	m := b.spec.StoreByMod
	if m == 0 {
		m = 1
	}
	if m < 1 || m > maxModulus {
		return nil, b.errorf("storebymod %d out of range", b.spec.StoreByMod)
	}
	if len(b.spec.Mod) == 0 {
		return nil, b.errorf("shardbymod parameters error: mod section is empty")
	}

	partitions := make([]string, m)
	for _, raw := range sortedKeys(b.spec.Mod) {
		node, err := b.requirePrimary("mod", raw)
		if err != nil {
			return nil, err
		}
		ids, err := parseIDList(b.spec.Mod[raw])
		if err != nil {
			return nil, b.errorf("mod %s: %v", node, err)
		}
		for _, r := range ids {
			if r < 0 || r >= m {
				return nil, b.errorf("mod %s: remainder %d outside [0,%d)", node, r, m)
			}
			if partitions[r] != "" {
				return nil, b.errorf("mod: remainder %d mapped to both %s and %s", r, partitions[r], node)
			}
			partitions[r] = node
		}
	}
	for r, node := range partitions {
		if node == "" {
			return nil, b.errorf("mod: remainder %d is not mapped", r)
		}
	}
	return ModRule{Modulus: m, Partitions: partitions}, nil
}

func (b *tableBuilder) dateRule() (Rule, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(b.spec.StoreByDate)))
	switch g {
	case GranularityYear, GranularityHalfYear, GranularitySeason, GranularityMonth:
	default:
		return nil, b.errorf("storebydate %q must be year, half-year, season or month", b.spec.StoreByDate)
	}
	if len(b.spec.Date) == 0 {
		return nil, b.errorf("shardbydate parameters error: date section is empty")
	}

	entries := make([]DateEntry, 0, len(b.spec.Date))
	for _, raw := range sortedKeys(b.spec.Date) {
		node, err := b.requirePrimary("date", raw)
		if err != nil {
			return nil, err
		}
		entry, err := parseDateEntry(node, b.spec.Date[raw], b.opts.location)
		if err != nil {
			return nil, b.errorf("date %s: %v", node, err)
		}
		entries = append(entries, entry)
	}
	// 有界区间优先，其次开放区间、截止区间，all 最后
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Node < entries[j].Node
	})
	return DateRule{Granularity: g, Entries: entries}, nil
}

func (b *tableBuilder) historyRule() (Rule, error) {
	rule := HistoryRule{
		Status: strings.TrimSpace(b.spec.StoreByStatus),
		Conds:  CondsAny,
	}
	if s := strings.TrimSpace(b.spec.StoreByHistory); s != "" {
		off, err := parseOffset(s)
		if err != nil {
			return nil, b.errorf("storebyhistory: %v", err)
		}
		rule.Cutoff = &off
	}
	if c := strings.ToLower(strings.TrimSpace(b.spec.StoreByConds)); c != "" {
		rule.Conds = Conds(c)
		if rule.Conds != CondsAny && rule.Conds != CondsBoth {
			return nil, b.errorf("storebyconds %q must be any or both", b.spec.StoreByConds)
		}
	}
	if rule.Cutoff == nil && rule.Status == "" {
		return nil, b.errorf("storebyhistory and storebystatus are both empty")
	}
	if len(b.spec.History) == 0 {
		return nil, b.errorf("shardbyhistory parameters error: history section is empty")
	}

	for _, raw := range sortedKeys(b.spec.History) {
		node, err := b.requirePrimary("history", raw)
		if err != nil {
			return nil, err
		}
		switch role := strings.ToLower(strings.TrimSpace(b.spec.History[raw])); role {
		case "current":
			if rule.Current != "" {
				return nil, b.errorf("history: both %s and %s are current", rule.Current, node)
			}
			rule.Current = node
		case "history":
			if rule.History != "" {
				return nil, b.errorf("history: both %s and %s are history", rule.History, node)
			}
			rule.History = node
		default:
			return nil, b.errorf("history %s: role %q must be current or history", node, role)
		}
	}
	if rule.Current == "" || rule.History == "" {
		return nil, b.errorf("history needs one current and one history node")
	}
	return rule, nil
}

func (b *tableBuilder) rangeRule() (Rule, error) {
	ranges, err := parseRanges(b.spec.StoreByRange)
	if err != nil {
		return nil, b.errorf("storebyrange: %v", err)
	}
	if len(b.spec.Range) == 0 {
		return nil, b.errorf("shardbyrange parameters error: range section is empty")
	}

	byLabel := make(map[string]int, len(ranges))
	for i, r := range ranges {
		byLabel[normalizeName(r.Label)] = i
	}
	for _, raw := range sortedKeys(b.spec.Range) {
		node, err := b.requirePrimary("range", raw)
		if err != nil {
			return nil, err
		}
		for _, label := range strings.Split(b.spec.Range[raw], ",") {
			label = normalizeName(label)
			if label == "" {
				continue
			}
			i, ok := byLabel[label]
			if !ok {
				return nil, b.errorf("range %s: label %s isn't declared in storebyrange", node, label)
			}
			if ranges[i].Node != "" {
				return nil, b.errorf("range: label %s mapped to both %s and %s", label, ranges[i].Node, node)
			}
			ranges[i].Node = node
		}
	}
	for _, r := range ranges {
		if r.Node == "" {
			return nil, b.errorf("range: label %s isn't mapped to any node", r.Label)
		}
	}
	return RangeRule{Ranges: ranges}, nil
}

func (b *tableBuilder) mapRule(desc *Descriptor) (Rule, error) {
	if strings.TrimSpace(b.spec.StoreByMap) == "" {
		return nil, b.errorf("storebymap isn't set")
	}
	ep, err := ParseEndpoint(b.spec.StoreByMap)
	if err != nil {
		return nil, b.errorf("storebymap: %v", err)
	}

	rule := MapRule{Endpoint: ep, Partitions: make(map[string][]int, len(b.spec.Map))}
	for _, raw := range sortedKeys(b.spec.Map) {
		node, err := b.requirePrimary("map", raw)
		if err != nil {
			return nil, err
		}
		ids, err := parseIDList(b.spec.Map[raw])
		if err != nil {
			return nil, b.errorf("map %s: %v", node, err)
		}
		for _, id := range ids {
			if id < 0 {
				return nil, b.errorf("map %s: negative partition id %d", node, id)
			}
			rule.Partitions[node] = append(rule.Partitions[node], int(id))
		}
	}
	if desc.SplitTable {
		for _, p := range desc.Primaries {
			if len(rule.Partitions[p.Name]) == 0 {
				return nil, b.errorf("map: master %s has no partition ids", p.Name)
			}
		}
	}
	return rule, nil
}

func (b *tableBuilder) udfRule() (Rule, error) {
	if strings.TrimSpace(b.spec.UDF) == "" {
		return nil, b.errorf("shardbyudf parameters error: udf isn't set")
	}
	name, args, err := parseUDFRef(b.spec.UDF)
	if err != nil {
		return nil, b.errorf("%v", err)
	}
	fn, ok := b.opts.udfs.Lookup(name)
	if !ok {
		return nil, b.errorf("udf %s isn't registered", name)
	}
	return UDFRule{Name: name, Args: args, Func: fn}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

