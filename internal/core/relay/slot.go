package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SideStatus 单侧连接状态
type SideStatus struct {
	Connected  bool      `json:"connected"`
	Session    string    `json:"session,omitempty"`
	Remote     string    `json:"remote,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Generation uint64    `json:"generation"`
}

// slot 持有一侧的当前连接
//
// mu 保护 conn 的替换以及对 conn 的写入；live 是 conn 的镜像，
// 由 liveMu 保护，用于在写方阻塞、持有 mu 时仍能关闭连接。
// conn 只在安装回调成功后才对写方可见。
type slot struct {
	side string

	mu   sync.Mutex
	cond *sync.Cond
	conn net.Conn
	gen  uint64

	// failedGen 最近一次写失败的连接代数，0 表示没有
	failedGen uint64

	liveMu  sync.Mutex
	live    net.Conn
	liveGen uint64
	info    SideStatus

	closed atomic.Bool
}

func newSlot(side string) *slot {
	s := &slot{side: side}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// installWith 安装新连接
//
// fn 在持有 mu 且连接尚不可见时执行；fn 失败时连接被关闭且不会安装。
func (s *slot) installWith(conn net.Conn, fn func(net.Conn) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.liveMu.Lock()
	if s.closed.Load() {
		s.liveMu.Unlock()
		_ = conn.Close()
		return 0, errSlotClosed
	}
	s.gen++
	gen := s.gen
	s.live = conn
	s.liveGen = gen
	s.info = SideStatus{
		Connected:  true,
		Session:    uuid.NewString(),
		Remote:     conn.RemoteAddr().String(),
		Since:      time.Now(),
		Generation: gen,
	}
	s.liveMu.Unlock()

	if fn != nil {
		if err := fn(conn); err != nil {
			s.clearLive(gen)
			_ = conn.Close()
			return 0, err
		}
	}

	s.conn = conn
	s.cond.Broadcast()
	return gen, nil
}

// withConn 在持有 mu 时以当前连接调用 fn
//
// 连接缺失时阻塞等待，slot 关闭时返回 errSlotClosed。
func (s *slot) withConn(fn func(conn net.Conn, gen uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.conn == nil {
		if s.closed.Load() {
			return errSlotClosed
		}
		s.cond.Wait()
	}
	if s.closed.Load() {
		return errSlotClosed
	}
	return fn(s.conn, s.gen)
}

// drop 关闭并移除第 gen 代连接
//
// 先通过 live 关闭连接以唤醒阻塞中的写方，再在 mu 下清除。
func (s *slot) drop(gen uint64) {
	if c := s.clearLive(gen); c != nil {
		_ = c.Close()
	}

	s.mu.Lock()
	if s.gen == gen {
		s.conn = nil
	}
	s.mu.Unlock()
}

// dropLocked 与 drop 相同，调用方已持有 mu
func (s *slot) dropLocked(gen uint64) {
	if c := s.clearLive(gen); c != nil {
		_ = c.Close()
	}
	if s.gen == gen {
		s.conn = nil
	}
}

// markWriteFailedLocked 记录第 gen 代连接上的写失败，调用方已持有 mu
func (s *slot) markWriteFailedLocked(gen uint64) {
	s.failedGen = gen
}

// writeFailed 报告第 gen 代连接上是否出现过写失败
//
// 需要获取 mu：正在进行中的写入先完成并记录结果，读方才做判定。
func (s *slot) writeFailed(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != 0 && s.failedGen == gen
}

// awaitReplacementLocked 等待第 gen 代连接被新连接替换，调用方已持有 mu
//
// slot 关闭时返回 errSlotClosed。
func (s *slot) awaitReplacementLocked(gen uint64) error {
	for s.gen == gen || s.conn == nil {
		if s.closed.Load() {
			return errSlotClosed
		}
		s.cond.Wait()
	}
	return nil
}

func (s *slot) clearLive(gen uint64) net.Conn {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	if s.live == nil || s.liveGen != gen {
		return nil
	}
	c := s.live
	s.live = nil
	s.info.Connected = false
	return c
}

// shutdown 关闭 slot 并唤醒所有等待者，可重复调用
func (s *slot) shutdown() error {
	s.closed.Store(true)

	s.liveMu.Lock()
	c := s.live
	s.live = nil
	s.info.Connected = false
	s.liveMu.Unlock()

	var err error
	if c != nil {
		err = c.Close()
	}

	s.mu.Lock()
	s.conn = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	return err
}

// status 返回当前状态快照，不会被阻塞中的写方卡住
func (s *slot) status() SideStatus {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	return s.info
}
