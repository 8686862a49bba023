// Package config loads the plain configuration record coldcache's core
// consumes. It replaces the source's XML, reflection-driven configuration
// with a declarative YAML record and an explicit loader, per spec.md §9's
// design note — this package, not the core, is the "any loader" spec.md §1
// leaves out of scope.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/coldtier/coldcache"
)

// defaultDiskExpiryIntervalSeconds is used whenever a CacheTemplate leaves
// DiskExpiryThreadIntervalSeconds at zero, per spec.md §6.
const defaultDiskExpiryIntervalSeconds = 120

// CacheTemplate is the named-cache settings block of the Configuration
// record described in spec.md §6.
type CacheTemplate struct {
	Name                            string `yaml:"name"`
	MaxElementsInMemory             int    `yaml:"max_elements_in_memory"`
	Eternal                         bool   `yaml:"eternal"`
	TimeToIdleSeconds               int    `yaml:"time_to_idle_seconds"`
	TimeToLiveSeconds               int    `yaml:"time_to_live_seconds"`
	OverflowToDisk                  bool   `yaml:"overflow_to_disk"`
	DiskPersistent                  bool   `yaml:"disk_persistent"`
	DiskExpiryThreadIntervalSeconds int    `yaml:"disk_expiry_thread_interval_seconds"`
}

// Configuration is the root configuration record: a shared disk root, a
// default cache template, and a set of named cache templates.
type Configuration struct {
	DiskCachePath string          `yaml:"disk_cache_path"`
	DefaultCache  CacheTemplate   `yaml:"default_cache"`
	Caches        []CacheTemplate `yaml:"caches"`
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePath expands the "user.home", "user.dir" and "system.tmpdir"
// tokens spec.md §6 names, in that order, and falls back to the system
// temp directory when path is empty.
func ResolvePath(path string) string {
	if path == "" {
		return os.TempDir()
	}

	replacer := strings.NewReplacer(
		"user.home", userHome(),
		"user.dir", userDir(),
		"system.tmpdir", os.TempDir(),
	)
	return filepath.Clean(replacer.Replace(path))
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

func userDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return os.TempDir()
	}
	return dir
}

// ToCacheConfig converts a CacheTemplate into the coldcache.CacheConfig the
// core consumes, resolving diskDir and applying the disk expiry interval
// default. name overrides tmpl.Name, letting a caller derive several
// caches' configurations from one default template.
func ToCacheConfig(name string, tmpl CacheTemplate, diskDir string) coldcache.CacheConfig {
	interval := tmpl.DiskExpiryThreadIntervalSeconds
	if interval == 0 {
		interval = defaultDiskExpiryIntervalSeconds
	}

	return coldcache.CacheConfig{
		Name:                     name,
		MaxElementsInMemory:      tmpl.MaxElementsInMemory,
		Eternal:                  tmpl.Eternal,
		TimeToLive:               time.Duration(tmpl.TimeToLiveSeconds) * time.Second,
		TimeToIdle:               time.Duration(tmpl.TimeToIdleSeconds) * time.Second,
		OverflowToDisk:           tmpl.OverflowToDisk,
		DiskPersistent:           tmpl.DiskPersistent,
		DiskExpiryThreadInterval: time.Duration(interval) * time.Second,
		DiskDir:                  diskDir,
	}
}

// DefaultCacheConfig resolves cfg.DefaultCache, the template
// CacheManager.SetDefaultCache clones for every cache added by name alone.
func (cfg *Configuration) DefaultCacheConfig() coldcache.CacheConfig {
	return ToCacheConfig(cfg.DefaultCache.Name, cfg.DefaultCache, ResolvePath(cfg.DiskCachePath))
}

// CacheConfigs resolves every named cache template in cfg into a
// coldcache.CacheConfig. Unlike the source's reflective merge against a
// default template, each entry in cfg.Caches is taken as a complete
// record; a loader that wants defaulting should merge templates itself
// before calling this.
func (cfg *Configuration) CacheConfigs() map[string]coldcache.CacheConfig {
	dir := ResolvePath(cfg.DiskCachePath)

	out := make(map[string]coldcache.CacheConfig, len(cfg.Caches))
	for _, tmpl := range cfg.Caches {
		out[tmpl.Name] = ToCacheConfig(tmpl.Name, tmpl, dir)
	}
	return out
}
