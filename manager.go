package coldcache

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheManager owns a named registry of caches sharing a disk root. Per
// spec.md §9's redesign note, it is an explicit, constructible value
// rather than a hidden global; Manager below layers an optional
// lazily-initialized process-wide instance on top for callers who want
// ergonomics closer to the source's singleton.
type CacheManager struct {
	mu       sync.Mutex
	caches   map[string]*Cache
	diskRoot string

	defaultConfig CacheConfig
	hasDefault    bool
}

// NewCacheManager creates a CacheManager rooted at diskRoot, the shared
// directory its caches' DiskStores create their files under.
func NewCacheManager(diskRoot string) *CacheManager {
	return &CacheManager{
		caches:   make(map[string]*Cache),
		diskRoot: diskRoot,
	}
}

// SetDefaultCache installs the template configuration AddCacheNamed clones
// for each new cache it creates.
func (m *CacheManager) SetDefaultCache(cfg CacheConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = cfg
	m.hasDefault = true
}

// SetDiskStorePath changes the shared disk root used for caches created
// from now on. Caches already added keep the root they were created with.
func (m *CacheManager) SetDiskStorePath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diskRoot = path
}

// AddCacheNamed creates a cache named name from the default configuration
// and registers it. It fails with ErrConfigurationMissing if no default
// has been set, and with ErrAlreadyExists if name is already registered.
func (m *CacheManager) AddCacheNamed(name string) (*Cache, error) {
	m.mu.Lock()
	if _, exists := m.caches[name]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	if !m.hasDefault {
		m.mu.Unlock()
		return nil, ErrConfigurationMissing
	}
	cfg := m.defaultConfig
	cfg.Name = name
	cfg.DiskDir = m.diskRoot
	m.mu.Unlock()

	c, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}

	if err := m.AddCache(c); err != nil {
		c.Dispose()
		return nil, err
	}

	return c, nil
}

// AddCache registers an already-configured Cache under its own name. It
// fails with ErrAlreadyExists if that name is already registered.
func (m *CacheManager) AddCache(c *Cache) error {
	m.mu.Lock()
	if _, exists := m.caches[c.Name()]; exists {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	m.caches[c.Name()] = c
	persistent := c.disk != nil && c.cfg.DiskPersistent
	m.mu.Unlock()

	if persistent {
		installShutdownHookOnce(m)
	}
	return nil
}

// GetCache returns the cache registered under name. Looking up a missing
// name is silent: the second result is simply false.
func (m *CacheManager) GetCache(name string) (*Cache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[name]
	return c, ok
}

// RemoveCache disposes and unregisters the cache named name. Removing a
// missing name is silent.
func (m *CacheManager) RemoveCache(name string) {
	m.mu.Lock()
	c, ok := m.caches[name]
	if ok {
		delete(m.caches, name)
	}
	m.mu.Unlock()

	if ok {
		c.Dispose()
	}
}

// RemoveNamedMap shuts the facade down (which disposes its underlying
// Cache) and then removes that Cache from the registry (which disposes it
// again). This mirrors the source's removeMegaMap, which called the
// facade's own shutdown and then the manager-level removeCache in
// sequence; it is exactly why Cache.Dispose must be idempotent
// (spec.md §9's fourth preserved-behavior note).
func (m *CacheManager) RemoveNamedMap(nm *NamedMap) error {
	err := nm.Shutdown()
	m.RemoveCache(nm.cache.Name())
	return err
}

// Names returns the names of every currently registered cache.
func (m *CacheManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	return names
}

// Collectors returns a prometheus.Collector for every registered cache,
// for a host process to register with its own registry.
func (m *CacheManager) Collectors() []prometheus.Collector {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]prometheus.Collector, 0, len(m.caches))
	for _, c := range m.caches {
		out = append(out, NewCollector(c))
	}
	return out
}

// Shutdown disposes every registered cache and empties the registry. It is
// idempotent: a second call finds nothing registered and performs no I/O.
func (m *CacheManager) Shutdown() {
	m.mu.Lock()
	caches := make([]*Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.caches = make(map[string]*Cache)
	m.mu.Unlock()

	for _, c := range caches {
		c.Dispose()
	}
}

var (
	singletonMu sync.Mutex
	singleton   *CacheManager
)

// Manager returns the lazily-initialized process-wide CacheManager,
// creating it on first call. Per spec.md §3, at most one lives at a time.
func Manager() *CacheManager {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton == nil {
		singleton = NewCacheManager(os.TempDir())
	}
	return singleton
}

// ShutdownManager shuts down and clears the process-wide CacheManager, if
// one exists. A subsequent call to Manager creates a fresh instance,
// supporting test isolation the way spec.md §4.4 requires.
func ShutdownManager() {
	singletonMu.Lock()
	m := singleton
	singleton = nil
	singletonMu.Unlock()

	if m != nil {
		m.Shutdown()
	}
}

var shutdownHookOnce sync.Once

// installShutdownHookOnce arranges for m to be disposed on SIGINT/SIGTERM,
// so a persistent cache still ALIVE at process termination gets a chance
// to flush its DiskStore, per spec.md §4.3. It fires exactly once per
// process, bound to whichever CacheManager first registered a persistent
// cache; a process juggling multiple independent managers must arrange its
// own shutdown ordering for the rest of them.
func installShutdownHookOnce(m *CacheManager) {
	shutdownHookOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-ch
			m.Shutdown()
		}()
	})
}
