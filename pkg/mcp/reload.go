package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowforge/agentcore/pkg/config"
)

// ConfigLoader reads and parses the current server list from whatever
// backs the running config (file, remote store, ...).
type ConfigLoader func() ([]config.ServerConfig, error)

// Reloader watches a config file and applies add/remove/change diffs to
// a Manager's server set as they happen, debouncing rapid writes the way
// hector's pkg/config/provider.FileProvider does.
type Reloader struct {
	path   string
	load   ConfigLoader
	mgr    *Manager
	watcher *fsnotify.Watcher
}

// NewReloader builds a reloader for configPath, using load to parse the
// file's current contents into server configs whenever it changes.
func NewReloader(configPath string, load ConfigLoader, mgr *Manager) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Reloader{path: configPath, load: load, mgr: mgr, watcher: watcher}, nil
}

// Run watches until ctx is cancelled, debouncing changes to the watched
// file by 100ms and re-diffing the server set on each settled change.
func (r *Reloader) Run(ctx context.Context) {
	defer r.watcher.Close()
	configFile := filepath.Base(r.path)

	var debounce *time.Timer
	applyCh := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != configFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case applyCh <- struct{}{}:
				default:
				}
			})
		case <-applyCh:
			r.applyChanges(ctx)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("mcp config watcher error", "error", err)
		}
	}
}

func (r *Reloader) applyChanges(ctx context.Context) {
	servers, err := r.load()
	if err != nil {
		slog.Error("mcp config reload failed", "error", err)
		return
	}
	added, changed, removed := diffServers(r.mgr.Servers(), servers)

	for _, cfg := range removed {
		slog.Info("mcp server removed from config", "server", cfg.Name)
		r.mgr.removeServer(cfg.Name)
	}
	for _, cfg := range added {
		slog.Info("mcp server added to config", "server", cfg.Name)
		r.mgr.addServer(ctx, cfg)
	}
	for _, cfg := range changed {
		slog.Info("mcp server config changed, reconnecting", "server", cfg.Name)
		r.mgr.removeServer(cfg.Name)
		r.mgr.addServer(ctx, cfg)
	}
}

// diffServers splits next against current into added/changed/removed sets.
func diffServers(current []*ServerRecord, next []config.ServerConfig) (added, changed, removed []config.ServerConfig) {
	byName := make(map[string]config.ServerConfig, len(next))
	for _, cfg := range next {
		// Stored records carry SetDefaults' values; apply the same
		// defaults so an unchanged entry compares equal.
		cfg.SetDefaults()
		byName[cfg.Name] = cfg
	}
	seen := make(map[string]bool, len(current))
	for _, rec := range current {
		seen[rec.Name()] = true
		cfg, ok := byName[rec.Name()]
		if !ok {
			removed = append(removed, rec.Config)
			continue
		}
		if !reflect.DeepEqual(cfg, rec.Config) {
			changed = append(changed, cfg)
		}
	}
	for name, cfg := range byName {
		if !seen[name] {
			added = append(added, cfg)
		}
	}
	return added, changed, removed
}
