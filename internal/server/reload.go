package server

import (
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

func installReloadSignalHandler(a *App) (stop func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				res, err := a.Reload()
				if err != nil {
					log.Printf("reload failed (signal): %v", err)
					continue
				}
				log.Printf("reload ok (signal): resolver=%s rules=%d changed_services=%s",
					a.backend.kind, res.Rules, serviceNamesForLog(res.ChangedServices))
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// installRulesAutoReload watches rules.dir and reloads after a quiet period
// of debounce_ms. It is a no-op unless the rules resolver is active and
// rules.auto_reload.enabled is set.
func installRulesAutoReload(a *App) (io.Closer, error) {
	cfg := a.cfg
	if a.backend.rules == nil || !cfg.Rules.AutoReload.Enabled {
		return nil, nil
	}
	dir := strings.TrimSpace(cfg.Rules.Dir)
	debounce := time.Duration(cfg.Rules.AutoReload.DebounceMs) * time.Millisecond

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addWatchRecursive(watcher, dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-timer.C:
				res, err := a.ReloadRules()
				if err != nil {
					log.Printf("reload failed (rules auto): %v", err)
					continue
				}
				log.Printf("reload ok (rules auto): rules_dir=%q rules=%d changed_services=%s",
					cfg.Rules.Dir, res.Rules, serviceNamesForLog(res.ChangedServices))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("rules auto-reload watcher error: %v", err)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&fsnotify.Create != 0 {
					if fi, statErr := os.Stat(evt.Name); statErr == nil && fi.IsDir() {
						if addErr := addWatchRecursive(watcher, evt.Name); addErr != nil {
							log.Printf("rules auto-reload add watch failed: path=%q err=%v", evt.Name, addErr)
						}
					}
				}
				if shouldTriggerRulesReload(evt) {
					timer.Reset(debounce)
				}
			}
		}
	}()

	log.Printf("rules auto-reload enabled: dir=%q debounce_ms=%d", dir, cfg.Rules.AutoReload.DebounceMs)
	return closerFunc(func() error {
		close(stopCh)
		_ = watcher.Close()
		<-doneCh
		return nil
	}), nil
}

func shouldTriggerRulesReload(evt fsnotify.Event) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return !strings.HasPrefix(filepath.Base(evt.Name), ".")
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func serviceNamesForLog(names []string) string {
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, ",")
}
