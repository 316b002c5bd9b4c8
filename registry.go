package pusher

import "sync"

// Registry 频道表，同名频道只创建一次，生命周期与客户端一致
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    []*Channel // 创建顺序

	newChannel func(name string, auth Authorizer) *Channel
}

func newRegistry(factory func(name string, auth Authorizer) *Channel) *Registry {
	return &Registry{
		channels:   make(map[string]*Channel),
		newChannel: factory,
	}
}

// Get 获取频道，不存在返回 nil
func (r *Registry) Get(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[name]
}

// GetOrCreate 获取或创建频道
// 频道已存在时返回原实例，auth 被忽略
func (r *Registry) GetOrCreate(name string, auth Authorizer) (*Channel, bool) {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return ch, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// double check
	if ch, ok := r.channels[name]; ok {
		return ch, false
	}
	ch = r.newChannel(name, auth)
	r.channels[name] = ch
	r.order = append(r.order, ch)
	return ch, true
}

// Range 按创建顺序遍历，fn 返回 false 时停止
// 遍历的是快照，fn 中可以创建新频道
func (r *Registry) Range(fn func(ch *Channel) bool) {
	r.mu.RLock()
	snapshot := r.order[:len(r.order):len(r.order)]
	r.mu.RUnlock()

	for _, ch := range snapshot {
		if !fn(ch) {
			return
		}
	}
}

// Len 频道数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
