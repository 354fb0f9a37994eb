package metrics

// Label 指标标签，标签值应保持低基数，不要使用分片键等高基数值
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
//
//	counter.Inc(ctx, metrics.L(metrics.LabelPolicy, "mod"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

// 路由器与映射存储使用的标签名
const (
	LabelTable   = "table"
	LabelPolicy  = "policy"
	LabelClass   = "class"
	LabelResult  = "result"
	LabelBackend = "backend"
)

// 常见的结果
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
