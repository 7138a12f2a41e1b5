package drive

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corerdp/rdpdr/internal/logger"
)

// RegisterFunc registers mountPath as a drive device and returns its
// assigned id. UnregisterFunc tears one down by id.
type RegisterFunc func(mountPath string) uint32
type UnregisterFunc func(id uint32)

// Run drives h until ctx is cancelled: a pollInterval ticker (spec.md §5
// "polls the host filesystem every 1s") re-reads /proc/mounts on every
// tick, and an fsnotify watch on h's whitelist roots triggers an
// out-of-band re-tick as soon as a mount appears or disappears, so a USB
// insertion doesn't wait out the rest of the poll interval.
func (h *Hotplug) Run(ctx context.Context, pollInterval time.Duration, register RegisterFunc, unregister UnregisterFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range h.roots {
		if err := watcher.Add(root); err != nil {
			logger.Debugf("hotplug: not watching %s: %v", root, err)
		}
	}

	apply := func() {
		mounts, err := ReadMounts()
		if err != nil {
			logger.Warnf("hotplug: read mounts: %v", err)
			return
		}
		delta := h.Tick(mounts)
		for _, id := range delta.Removed {
			unregister(id)
		}
		for _, path := range delta.Added {
			id := register(path)
			h.MarkRegistered(path, id)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	apply()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			apply()
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			apply()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debugf("hotplug: watch error: %v", err)
		}
	}
}
