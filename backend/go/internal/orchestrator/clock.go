package orchestrator

import "time"

// Ticker 是 time.Ticker 的可替换抽象。
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock 提供调度器用到的全部时间操作，测试中可以替换为手动推进的实现。
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// RealClock 返回基于 time 包的 Clock。
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) NewTicker(d time.Duration) Ticker       { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
