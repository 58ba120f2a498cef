// Package lifecycle 实现 bot 的状态机：任务结果如何折算成
// 下一个状态、失败计数和下次执行时间。状态只能由这里的
// 转移函数推导，任何组件都不允许直接改写。
package lifecycle

import (
	"time"

	"github.com/cnctrack/cnctrack/datalayer/model"
)

// Kind 任务的最终结果类别。
type Kind uint8

const (
	KindWorking  Kind = iota // 模块拿到了有效数据
	KindFailing              // 模块正常跑完但一无所获
	KindCrashed              // 模块自身出错
	KindArchived             // 模块要求归档，或失败次数到达上限
)

func (k Kind) String() string {
	switch k {
	case KindWorking:
		return "working"
	case KindFailing:
		return "failing"
	case KindCrashed:
		return "crashed"
	case KindArchived:
		return "archived"
	}
	return "unknown"
}

// Policy 状态机的时间参数。
type Policy struct {
	HealthyInterval time.Duration // 健康 bot 的复查间隔
	BackoffBase     time.Duration // 失败退避基数
	BackoffCap      time.Duration // 失败退避上限
	CrashRetry      time.Duration // 崩溃后的固定重试间隔，应短于失败退避
	MaxFailingSpree int           // 连续失败多少次后归档
}

// Transition 一次状态转移的落库内容。
type Transition struct {
	Status        model.Status
	FailingSpree  int
	NextExecution *time.Time // nil 代表永不执行（归档）
	LastError     string
}

// Next 由当前失败计数和任务结果推导状态转移。
func (p Policy) Next(now time.Time, spree int, kind Kind, reason string) Transition {
	switch kind {
	case KindWorking:
		at := now.Add(p.HealthyInterval)
		return Transition{Status: model.SWorking, FailingSpree: 0, NextExecution: &at}
	case KindCrashed:
		at := now.Add(p.CrashRetry)
		return Transition{Status: model.SCrashed, FailingSpree: spree, NextExecution: &at, LastError: reason}
	case KindArchived:
		return Transition{Status: model.SArchived, FailingSpree: spree, LastError: reason}
	case KindFailing:
		spree++
		if spree >= p.MaxFailingSpree {
			// 持续失败的目标大概率已经死透，归档止损。
			return Transition{Status: model.SArchived, FailingSpree: spree, LastError: reason}
		}
		at := now.Add(p.Backoff(spree))
		return Transition{Status: model.SFailing, FailingSpree: spree, NextExecution: &at, LastError: reason}
	}

	at := now.Add(p.CrashRetry)
	return Transition{Status: model.SCrashed, FailingSpree: spree, NextExecution: &at, LastError: "unknown outcome"}
}

// Backoff 按失败计数计算退避间隔：base × 2^(spree-1)，封顶 cap。
// 单调不减，死目标的重试频率越来越低。
func (p Policy) Backoff(spree int) time.Duration {
	if spree <= 1 {
		return p.BackoffBase
	}

	backoff := p.BackoffBase
	for i := 1; i < spree; i++ {
		backoff *= 2
		if backoff >= p.BackoffCap || backoff <= 0 { // 溢出保护
			return p.BackoffCap
		}
	}
	if backoff > p.BackoffCap {
		return p.BackoffCap
	}

	return backoff
}
