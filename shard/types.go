package shard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ceyewan/dbroute/xerrors"
)

// Node 一个物理数据库节点
type Node struct {
	Name     string `json:"name" yaml:"name"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"-"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// Addr 返回 host:port
func (n Node) Addr() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// String 输出时隐藏密码
func (n Node) String() string {
	s := fmt.Sprintf("%s(%s@%s", n.Name, n.User, n.Addr())
	if n.Database != "" {
		s += "/" + n.Database
	}
	return s + ")"
}

// WeightedNode 带权重的节点引用，权重恒为正
type WeightedNode struct {
	Name   string `json:"name" yaml:"name"`
	Weight int    `json:"weight" yaml:"weight"`
}

// Policy 分片策略
type Policy string

const (
	PolicyNone    Policy = "none"
	PolicyMod     Policy = "mod"
	PolicyDate    Policy = "date"
	PolicyHistory Policy = "history"
	PolicyRange   Policy = "range"
	PolicyMap     Policy = "map"
	PolicyUDF     Policy = "udf"
)

// ParsePolicy 解析策略名，空字符串视为 none
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PolicyNone, nil
	case PolicyNone, PolicyMod, PolicyDate, PolicyHistory, PolicyRange, PolicyMap, PolicyUDF:
		return p, nil
	}
	return "", fmt.Errorf("unknown shard type %q", s)
}

// ReplicaClass 请求的副本类型
type ReplicaClass int

const (
	Primary ReplicaClass = iota
	Replica
)

// ParseReplicaClass 解析副本类型，无法识别的值一律视为 Primary
func ParseReplicaClass(s string) ReplicaClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replica", "slave":
		return Replica
	default:
		return Primary
	}
}

func (c ReplicaClass) String() string {
	if c == Replica {
		return "replica"
	}
	return "primary"
}

// MarshalText 使 ReplicaClass 以字符串形式出现在 JSON/YAML 中
func (c ReplicaClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Descriptor 一张逻辑表的分片描述，构建后只读
type Descriptor struct {
	Table      string
	Policy     Policy
	SplitTable bool
	Primaries  []WeightedNode
	Replicas   map[string][]WeightedNode
	Rule       Rule
}

// Target 一次解析的结果
type Target struct {
	NodeName string       `json:"node_name" yaml:"node_name"`
	Node     Node         `json:"node" yaml:"node"`
	Table    string       `json:"table" yaml:"table"`
	Suffix   string       `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Class    ReplicaClass `json:"class" yaml:"class"`
}

// Topology 一份完整的、已校验的分片拓扑快照
type Topology struct {
	Nodes  map[string]Node
	Tables map[string]*Descriptor

	folded map[string]*Descriptor
}

// Descriptor 查找表描述，先精确匹配，再忽略大小写匹配
func (t *Topology) Descriptor(table string) (*Descriptor, bool) {
	if d, ok := t.Tables[table]; ok {
		return d, true
	}
	d, ok := t.folded[strings.ToLower(table)]
	return d, ok
}

// Target 按节点名构造解析结果，供自定义路由函数使用
func (t *Topology) Target(node, table string, class ReplicaClass) (*Target, error) {
	name := strings.ToLower(strings.TrimSpace(node))
	n, ok := t.Nodes[name]
	if !ok {
		return nil, xerrors.Wrapf(ErrUnknownNode, "node %s", node)
	}
	return &Target{NodeName: name, Node: n, Table: table, Class: class}, nil
}
