package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// CodeFilter 记录本实例见过的短码，实现 shortlink.CodeFilter。
// 只给随机生成跳过候选用；自定义短码要查库，误判会拒掉可用的短码。
type CodeFilter struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

// NewCodeFilter 按预期数量 n 和误判率 fp（如 0.01）确定位数组大小。
func NewCodeFilter(n uint, fp float64) *CodeFilter {
	return &CodeFilter{bf: bloom.NewWithEstimates(n, fp)}
}

func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	f.bf.AddString(code)
	f.mu.Unlock()
}

func (f *CodeFilter) MightExist(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.TestString(code)
}

// Len 估算已加入的短码数
func (f *CodeFilter) Len() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.ApproximatedSize()
}
