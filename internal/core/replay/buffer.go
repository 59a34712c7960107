// Package replay 实现上游重连后的订阅重放缓存
//
// 缓存只保留最近一次下游→上游转发的数据块（last-write-wins），
// 不是队列：上游断开期间被覆盖的数据块不会被重放。
package replay

import "sync"

// Buffer 最近一次下游→上游数据块
//
// 容量固定为转发缓冲区大小；超过容量的数据块只保留末尾 capacity 字节。
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	n        int
	capacity int
	stores   uint64
}

// New 创建容量为 capacity 的重放缓存
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Store 用 p 覆盖当前内容
func (b *Buffer) Store(p []byte) {
	if len(p) > b.capacity {
		p = p[len(p)-b.capacity:]
	}

	b.mu.Lock()
	b.n = copy(b.data, p)
	b.stores++
	b.mu.Unlock()
}

// Snapshot 返回当前内容的拷贝，空缓存返回 nil
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n == 0 {
		return nil
	}
	out := make([]byte, b.n)
	copy(out, b.data[:b.n])
	return out
}

// Len 返回当前内容长度
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap 返回容量
func (b *Buffer) Cap() int {
	return b.capacity
}

// Stores 返回累计写入次数
func (b *Buffer) Stores() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stores
}

// Reset 清空内容
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.n = 0
	b.mu.Unlock()
}
