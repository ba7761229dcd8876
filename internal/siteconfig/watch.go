package siteconfig

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"bookpilot/internal/logging"
)

// Registry holds the loaded site maps and reloads them when the backing
// YAML file changes. Reads are cheap; the booking workflow resolves its
// site once at run start so an in-flight run never sees a mixed config.
type Registry struct {
	path string

	mu    sync.RWMutex
	sites map[string]*Site

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry loads the config file and returns a registry without a
// watcher. Call Watch to enable hot reload.
func NewRegistry(path string) (*Registry, error) {
	sites, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, sites: sites}, nil
}

// Get returns the site map for a site key.
func (r *Registry) Get(key string) (*Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	site, ok := r.sites[key]
	return site, ok
}

// Keys returns the configured site keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sites))
	for k := range r.sites {
		keys = append(keys, k)
	}
	return keys
}

// Watch starts reloading the registry when the config file is rewritten.
// A reload that fails to parse keeps the previous maps.
func (r *Registry) Watch() error {
	if r.watcher != nil {
		return fmt.Errorf("registry already watching")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files, which drops a file watch.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})
	log := logging.Get(logging.CategoryBoot)

	go func() {
		defer close(r.done)
		base := filepath.Base(r.path)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				sites, err := Load(r.path)
				if err != nil {
					log.Warnf("site config reload failed, keeping previous: %v", err)
					continue
				}
				r.mu.Lock()
				r.sites = sites
				r.mu.Unlock()
				log.Infof("site config reloaded: %d sites", len(sites))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("site config watcher: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	<-r.done
	r.watcher = nil
	return err
}
