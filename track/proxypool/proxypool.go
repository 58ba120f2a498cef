// Package proxypool 维护内存中的出口代理池。
// 池是数据库 proxies 表的只读快照，刷新时整体替换，
// 分配只在内存里做随机挑选，不产生数据库往返。
package proxypool

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cnctrack/cnctrack/datalayer/model"
)

// ErrNoProxy 池中没有满足国家约束的代理。
var ErrNoProxy = errors.New("没有可用代理")

// Pool 按国家分组的代理池。
type Pool struct {
	mutex   sync.RWMutex
	byCtry  map[string][]model.Proxy
	proxies []model.Proxy
}

func New() *Pool {
	return &Pool{byCtry: make(map[string][]model.Proxy, 16)}
}

// Replace 用新列表整体替换池内容。底层匿名网络的节点
// 可能在两次刷新之间完全换血，增量合并没有意义。
func (p *Pool) Replace(proxies []model.Proxy) {
	byCtry := make(map[string][]model.Proxy, 16)
	for _, proxy := range proxies {
		byCtry[proxy.Country] = append(byCtry[proxy.Country], proxy)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.proxies = proxies
	p.byCtry = byCtry
}

// Assign 分配一个代理。country 非空时只在该国家的代理中随机挑选，
// 为空时在全池中随机挑选。池中无候选返回 ErrNoProxy。
func (p *Pool) Assign(country string) (model.Proxy, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	candidates := p.proxies
	if country != "" {
		candidates = p.byCtry[country]
	}
	if len(candidates) == 0 {
		return model.Proxy{}, ErrNoProxy
	}

	return candidates[rand.IntN(len(candidates))], nil
}

// Countries 池中出现过的国家，按字典序。
// 调度器按此为 tracker 补建各国家的 bot。
func (p *Pool) Countries() []string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	names := make([]string, 0, len(p.byCtry))
	for name := range p.byCtry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Size 池中代理总数。
func (p *Pool) Size() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.proxies)
}

// Snapshot 当前池内容的副本。
func (p *Pool) Snapshot() []model.Proxy {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	ret := make([]model.Proxy, len(p.proxies))
	copy(ret, p.proxies)

	return ret
}
