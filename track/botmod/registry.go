package botmod

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 家族名到模块构造器的映射，启动时注册完毕后只读。
type Registry struct {
	mutex     sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory, 16)}
}

// Register 注册模块，家族名重复视为部署错误。
func (r *Registry) Register(fs ...Factory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, f := range fs {
		family := f.Family()
		if family == "" {
			return fmt.Errorf("模块家族名不能为空")
		}
		if _, exist := r.factories[family]; exist {
			return fmt.Errorf("家族 %s 的模块重复注册", family)
		}
		r.factories[family] = f
	}

	return nil
}

func (r *Registry) Lookup(family string) (Factory, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	f, ok := r.factories[family]
	return f, ok
}

// Families 已注册的家族名，按字典序。
func (r *Registry) Families() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
