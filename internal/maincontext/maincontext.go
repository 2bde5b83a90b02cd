// Package maincontext implements the Main Context (spec component G): a
// process-wide singleton owning the IdRegistry, the memory-cache limits,
// a global error counter, and the set of output paths claimed by live
// bundlers (to detect duplicate-output configurations). Grounded on the
// teacher's own top-level *BuildContext / service singleton (cmd/esbuild's
// service.go in the original tree), narrowed to this system's ownership
// model (spec §3 Ownership, §4.G, §5).
package maincontext

import (
	"fmt"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/tsbundle/tsb/internal/helpers"
	"github.com/tsbundle/tsb/internal/idreg"
	"github.com/tsbundle/tsb/internal/logger"
	"github.com/tsbundle/tsb/internal/metrics"
	"github.com/tsbundle/tsb/internal/modcache"
)

// CacheDir returns the default on-disk cache directory, the platform XDG
// cache home joined with "tsb" — grounded on bennypowers-cem's use of
// github.com/adrg/xdg for the identical purpose, replacing a hardcoded
// ".cache" folder.
func CacheDir() string {
	dir, err := xdg.CacheFile("tsb")
	if err != nil {
		return ".tsb-cache"
	}
	return dir
}

// MainContext is the process-wide singleton. Callers construct it once in
// main and pass it down explicitly (spec §9's "Global mutable state" note
// recommends exactly this instead of a package-level global).
type MainContext struct {
	mu sync.Mutex

	registryDir string
	registries  map[string]*idreg.IdRegistry // keyed by output path

	DiskCache *modcache.DiskCache
	MemCache  *modcache.MemCache
	Metrics   *metrics.Registry

	errorCount int
	claimedOutputs map[string]bool

	saving     bool
	dirty      bool
	savingCond *sync.Cond
}

type Config struct {
	CacheDir     string
	MemCacheMax  int64
	IdleExpiry   time.Duration
	EnableMetrics bool
}

func New(cfg Config) *MainContext {
	if cfg.CacheDir == "" {
		cfg.CacheDir = CacheDir()
	}
	if cfg.MemCacheMax == 0 {
		cfg.MemCacheMax = 1 << 30 // 1 GiB default, spec §4.B
	}
	if cfg.IdleExpiry == 0 {
		cfg.IdleExpiry = 20 * time.Minute
	}
	mc := &MainContext{
		registryDir:    cfg.CacheDir,
		registries:     make(map[string]*idreg.IdRegistry),
		DiskCache:      modcache.NewDiskCache(cfg.CacheDir),
		MemCache:       modcache.NewMemCache(cfg.MemCacheMax, cfg.IdleExpiry),
		claimedOutputs: make(map[string]bool),
	}
	mc.savingCond = sync.NewCond(&mc.mu)
	if cfg.EnableMetrics {
		mc.Metrics = metrics.New()
	}
	return mc
}

// RegistryFor returns (loading from disk if necessary) the IdRegistry for
// one output path, per spec §3's "one registry per output file".
func (mc *MainContext) RegistryFor(outputPath string) *idreg.IdRegistry {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if reg, ok := mc.registries[outputPath]; ok {
		return reg
	}
	reg := idreg.Load(mc.registryPath(outputPath))
	mc.registries[outputPath] = reg
	return reg
}

func (mc *MainContext) registryPath(outputPath string) string {
	return mc.registryDir + "/registry-" + hashPath(outputPath) + ".json"
}

// hashPath names a registry file by its output path, using the teacher's
// own FNV-style combiner (internal/helpers.HashCombineString) rather than
// a one-off hash function.
func hashPath(p string) string {
	return fmt.Sprintf("%08x", helpers.HashCombineString(2166136261, p))
}

// ClaimOutput registers outputPath as in-use by a live bundler. It
// returns an error (spec §7's Duplicated, code 20003) if another bundler
// in this process has already claimed the same path.
func (mc *MainContext) ClaimOutput(outputPath string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.claimedOutputs[outputPath] {
		return fmt.Errorf("duplicate output path: %s", outputPath)
	}
	mc.claimedOutputs[outputPath] = true
	return nil
}

func (mc *MainContext) ReleaseOutput(outputPath string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.claimedOutputs, outputPath)
}

// IncrementErrors atomically bumps the global error count, optionally
// reflecting it into the metrics registry.
func (mc *MainContext) IncrementErrors(n int) {
	mc.mu.Lock()
	mc.errorCount += n
	mc.mu.Unlock()
	if mc.Metrics != nil {
		for i := 0; i < n; i++ {
			mc.Metrics.ErrorsTotal.Inc()
		}
	}
}

func (mc *MainContext) ErrorCount() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.errorCount
}

// Flush synchronously saves every registry this process has touched. A
// second Flush invocation concurrent with an in-flight one is serialized
// by the saving flag + dirty bit described in spec §4.G/§5, so no write
// is lost: a caller that arrives mid-save marks dirty and waits for the
// in-flight save to notice and loop again.
func (mc *MainContext) Flush(log logger.Log) {
	mc.mu.Lock()
	if mc.saving {
		mc.dirty = true
		for mc.saving {
			mc.savingCond.Wait()
		}
		mc.mu.Unlock()
		return
	}
	mc.saving = true
	regs := make([]*idreg.IdRegistry, 0, len(mc.registries))
	for _, r := range mc.registries {
		regs = append(regs, r)
	}
	mc.mu.Unlock()

	for {
		for _, r := range regs {
			if err := r.Save(); err != nil {
				log.AddID(logger.MsgID_InternalError, logger.Warning, nil, logger.Range{},
					"failed to save identifier registry: "+err.Error())
			}
		}

		mc.mu.Lock()
		if !mc.dirty {
			mc.saving = false
			mc.savingCond.Broadcast()
			mc.mu.Unlock()
			return
		}
		mc.dirty = false
		mc.mu.Unlock()
	}
}

// EvictIdleMemCache drops unreferenced memory-cache entries past their
// idle-expiry deadline; callers run this periodically (spec §4.B).
func (mc *MainContext) EvictIdleMemCache() {
	mc.MemCache.EvictIdle(time.Now())
	if mc.Metrics != nil {
		mc.Metrics.MemCacheBytes.Set(float64(mc.MemCache.CurrentSize()))
	}
}
