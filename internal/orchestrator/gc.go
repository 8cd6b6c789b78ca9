package orchestrator

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saibing/cjlscore/internal/model"
)

// persistedStore is the subset of artifact.DiskStore the GC needs;
// in-memory-only stores (or none at all) simply don't implement it, so
// StartCacheGC is a no-op for them.
type persistedStore interface {
	KnownPackages() []model.PackageID
	Remove(model.PackageID) error
}

// StartCacheGC schedules gcPersistedCache on the configured interval
// (default every 10 minutes, disabled entirely under the test platform
// flag). Safe to call once per Orchestrator lifetime; a second call
// replaces the previous schedule.
func (o *Orchestrator) StartCacheGC() {
	if o.cfg.Platform.Test {
		return
	}
	store, ok := o.artifacts.Store()
	if !ok {
		return
	}
	ps, ok := store.(persistedStore)
	if !ok {
		return
	}

	if o.cron != nil {
		o.cron.Stop()
	}
	o.cron = cron.New()
	_, err := o.cron.AddFunc(o.cfg.EffectiveGCInterval(), func() { o.gcPersistedCache(ps) })
	if err != nil {
		o.log.Error("orchestrator: invalid gc interval, cache GC disabled", zap.String("interval", o.cfg.EffectiveGCInterval()), zap.Error(err))
		o.cron = nil
		return
	}
	o.cron.Start()
}

// gcPersistedCache scans the on-disk shard store for packages no longer
// present in the current graph and removes them.
func (o *Orchestrator) gcPersistedCache(store persistedStore) {
	o.mu.Lock()
	live := make(map[model.PackageID]struct{}, len(o.packages))
	for pkg := range o.packages {
		live[pkg] = struct{}{}
	}
	o.mu.Unlock()

	removed := 0
	for _, pkg := range store.KnownPackages() {
		if _, ok := live[pkg]; ok {
			continue
		}
		if err := store.Remove(pkg); err != nil {
			o.log.Warn("orchestrator: cache gc failed to remove stale shard", zap.String("package", string(pkg)), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		o.log.Info("orchestrator: cache gc removed stale shards", zap.Int("count", removed))
	}
}
