package shard

import (
	"math/rand/v2"
	"sync"
)

// Rand 随机数来源，IntN 返回 [0, n) 内的整数
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// lockedRand 为非并发安全的随机源加锁
type lockedRand struct {
	mu  sync.Mutex
	src Rand
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.IntN(n)
}

// pickWeighted 按权重随机选择节点
//
// 权重按占比映射到 [1,100] 上的连续整数区间，区间上界向下取整；
// 抽取 [1,100] 内的整数，落在取整留下的空隙时返回最后一个节点。
func pickWeighted(nodes []WeightedNode, rnd Rand) string {
	if len(nodes) == 0 {
		return ""
	}
	total := 0
	for _, n := range nodes {
		total += n.Weight
	}

	draw := rnd.IntN(100) + 1
	start := 1
	for _, n := range nodes {
		hi := int(float64(start) + float64(n.Weight)/float64(total)*100 - 1)
		if draw >= start && draw <= hi {
			return n.Name
		}
		start = hi + 1
	}
	return nodes[len(nodes)-1].Name
}
