package voice

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/iabetor/pispeak/internal/logger"
	"golang.org/x/sync/singleflight"
)

// entry 是一个已加载的语音。模型由 Registry 独占，
// 卸载后等最后一个句柄释放时才真正关闭。
type entry struct {
	id    string
	path  string
	model Model
	meta  *Meta
	refs  int
	gone  bool
}

// Handle 是对已加载语音的一次借用，用完必须 Release。
type Handle struct {
	r    *Registry
	e    *entry
	once sync.Once
}

// ID 返回语音 ID。
func (h *Handle) ID() string { return h.e.id }

// Path 返回模型文件路径。
func (h *Handle) Path() string { return h.e.path }

// Model 返回语音模型，Release 之后不得再使用。
func (h *Handle) Model() Model { return h.e.model }

// Meta 返回已观察到的格式，尚未合成过时 ok 为 false。
func (h *Handle) Meta() (Meta, bool) {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.e.meta == nil {
		return Meta{}, false
	}
	return *h.e.meta, true
}

// SetMeta 仅在尚未设置时写入格式，返回是否写入。
func (h *Handle) SetMeta(m Meta) bool {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.e.meta != nil {
		return false
	}
	h.e.meta = &m
	return true
}

// Release 归还句柄。
func (h *Handle) Release() {
	h.once.Do(func() { h.r.release(h.e) })
}

// Snapshot 是 Registry 的只读快照。
type Snapshot struct {
	Default   string
	Loaded    map[string]*Meta
	Available map[string]string
}

// LoadHook 在每次真正执行模型加载后调用。
type LoadHook func(id string, elapsed time.Duration, err error)

// Option 配置 Registry。
type Option func(*Registry)

// WithDefault 指定首选默认语音，不在目录中时回退为第一个发现的语音。
func WithDefault(id string) Option {
	return func(r *Registry) { r.preferred = id }
}

// WithLoadHook 注册加载回调，用于统计。
func WithLoadHook(fn LoadHook) Option {
	return func(r *Registry) { r.onLoad = fn }
}

// Registry 管理语音目录与已加载模型的生命周期。
// 同一语音的并发加载会被合并为一次。
type Registry struct {
	loader    Loader
	preferred string
	onLoad    LoadHook

	mu      sync.Mutex
	catalog map[string]string
	order   []string
	loaded  map[string]*entry

	group singleflight.Group
}

// NewRegistry 用发现的模型文件创建 Registry，不加载任何模型。
func NewRegistry(loader Loader, descs []Descriptor, opts ...Option) *Registry {
	r := &Registry{
		loader:  loader,
		catalog: make(map[string]string, len(descs)),
		loaded:  make(map[string]*entry),
	}
	for _, d := range descs {
		if _, dup := r.catalog[d.ID]; !dup {
			r.order = append(r.order, d.ID)
		}
		r.catalog[d.ID] = d.Path
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default 返回默认语音 ID。
func (r *Registry) Default() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultLocked()
}

func (r *Registry) defaultLocked() (string, error) {
	if r.preferred != "" {
		if _, ok := r.catalog[r.preferred]; ok {
			return r.preferred, nil
		}
	}
	if len(r.order) == 0 {
		return "", ErrNoDefaultVoice
	}
	return r.order[0], nil
}

// Get 返回已加载的语音，未加载时按目录路径加载。
func (r *Registry) Get(id string) (*Handle, error) {
	if h := r.acquire(id); h != nil {
		return h, nil
	}

	r.mu.Lock()
	path, ok := r.catalog[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVoiceNotFound, id)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrVoiceNotFound, id, path)
	}

	// 加载完成到取得句柄之间可能被并发卸载，此时重新加载一次
	for attempt := 0; attempt < 2; attempt++ {
		if err := r.loadOnce(id, path, true); err != nil {
			return nil, err
		}
		if h := r.acquire(id); h != nil {
			return h, nil
		}
		logger.Debugf("[voice] 语音 %s 加载后被卸载，重新加载", id)
	}
	return nil, fmt.Errorf("%w: %s 加载后已被卸载", ErrVoiceNotFound, id)
}

// Load 注册（或覆盖）语音路径并立即加载。
// path 为空时使用目录中已有的路径。相同路径重复调用不会重复加载。
func (r *Registry) Load(id, path string) error {
	if id == "" {
		return fmt.Errorf("%w: 语音 ID 为空", ErrVoiceNotFound)
	}

	r.mu.Lock()
	if path == "" {
		path = r.catalog[id]
	}
	r.mu.Unlock()
	if path == "" {
		return fmt.Errorf("%w: %s 没有可用的模型路径", ErrVoicePathNotFound, id)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrVoicePathNotFound, path)
	}

	r.mu.Lock()
	if _, ok := r.catalog[id]; !ok {
		r.order = append(r.order, id)
	}
	r.catalog[id] = path
	e := r.loaded[id]
	r.mu.Unlock()

	if e != nil && e.path == path {
		return nil
	}
	return r.loadOnce(id, path, false)
}

// loadOnce 合并同一 (id, path) 的并发加载。
// anyPath 为 true 时，只要该 ID 已有加载实例就不再加载。
func (r *Registry) loadOnce(id, path string, anyPath bool) error {
	_, err, _ := r.group.Do(id+"\x00"+path, func() (interface{}, error) {
		r.mu.Lock()
		e := r.loaded[id]
		r.mu.Unlock()
		if e != nil && (anyPath || e.path == path) {
			return nil, nil
		}
		return nil, r.loadEntry(id, path)
	})
	return err
}

func (r *Registry) loadEntry(id, path string) error {
	logger.Infof("[voice] 正在加载语音 %s: %s", id, path)
	start := time.Now()
	m, err := r.loader(id, path)
	elapsed := time.Since(start)
	if err != nil {
		if r.onLoad != nil {
			r.onLoad(id, elapsed, err)
		}
		return fmt.Errorf("加载语音 %s 失败: %w", id, err)
	}

	r.mu.Lock()
	var stale Model
	if old := r.loaded[id]; old != nil {
		stale = r.detachLocked(old)
	}
	r.loaded[id] = &entry{id: id, path: path, model: m}
	r.mu.Unlock()

	if stale != nil {
		closeModel(id, stale)
	}
	logger.Infof("[voice] 语音 %s 已加载，耗时 %v", id, elapsed.Round(time.Millisecond))
	if r.onLoad != nil {
		r.onLoad(id, elapsed, nil)
	}
	return nil
}

// Unload 卸载语音并清除其格式信息，返回是否有内容被移除。
func (r *Registry) Unload(id string) bool {
	r.mu.Lock()
	e := r.loaded[id]
	if e == nil {
		r.mu.Unlock()
		return false
	}
	m := r.detachLocked(e)
	r.mu.Unlock()

	if m != nil {
		closeModel(id, m)
	}
	logger.Infof("[voice] 语音 %s 已卸载", id)
	return true
}

// List 返回目录、已加载语音及默认语音的快照。
func (r *Registry) List() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Loaded:    make(map[string]*Meta, len(r.loaded)),
		Available: make(map[string]string, len(r.catalog)),
	}
	snap.Default, _ = r.defaultLocked()
	for id, path := range r.catalog {
		snap.Available[id] = path
	}
	for id, e := range r.loaded {
		if e.meta != nil {
			m := *e.meta
			snap.Loaded[id] = &m
		} else {
			snap.Loaded[id] = nil
		}
	}
	return snap
}

// LoadedIDs 返回已加载语音 ID，按字母排序。
func (r *Registry) LoadedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.loaded))
	for id := range r.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close 卸载全部语音，进程退出前调用。
func (r *Registry) Close() {
	r.mu.Lock()
	var free []*entry
	for _, e := range r.loaded {
		if m := r.detachLocked(e); m != nil {
			free = append(free, e)
		}
	}
	r.mu.Unlock()

	for _, e := range free {
		closeModel(e.id, e.model)
	}
	logger.Infof("[voice] 语音注册表已关闭 (释放 %d 个模型)", len(free))
}

func (r *Registry) acquire(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.loaded[id]
	if e == nil {
		return nil
	}
	e.refs++
	return &Handle{r: r, e: e}
}

func (r *Registry) release(e *entry) {
	r.mu.Lock()
	e.refs--
	closeNow := e.gone && e.refs == 0
	r.mu.Unlock()
	if closeNow {
		closeModel(e.id, e.model)
	}
}

// detachLocked 将 entry 移出已加载表；无人借用时返回需关闭的模型。
func (r *Registry) detachLocked(e *entry) Model {
	if r.loaded[e.id] == e {
		delete(r.loaded, e.id)
	}
	e.gone = true
	if e.refs == 0 {
		return e.model
	}
	return nil
}

func closeModel(id string, m Model) {
	if err := m.Close(); err != nil {
		logger.Warnf("[voice] 释放语音 %s 失败: %v", id, err)
	}
}
