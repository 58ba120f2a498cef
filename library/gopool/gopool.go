package gopool

import "sync"

// Runner 可提交到协程池的任务。
type Runner interface {
	Run()
}

// New 创建协程池，max 为最大并发数。
func New(max int) *Pool {
	if max <= 0 {
		max = 1
	}
	return &Pool{tokens: make(chan struct{}, max)}
}

type Pool struct {
	tokens chan struct{}
	wg     sync.WaitGroup
}

// Submit 提交任务，池满时阻塞等待空位。
func (p *Pool) Submit(r Runner) {
	p.Go(r.Run)
}

func (p *Pool) Go(fn func()) {
	p.tokens <- struct{}{}
	p.wg.Add(1)
	go func() {
		defer func() {
			recover() // 任务内部的 panic 不能影响池
			<-p.tokens
			p.wg.Done()
		}()
		fn()
	}()
}

// Wait 等待所有已提交任务结束。
func (p *Pool) Wait() { p.wg.Wait() }
