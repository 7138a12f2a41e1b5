package drive

import (
	"path/filepath"
	"strings"
)

// DefaultWhitelistRoots are the automount roots hotplug polling accepts
// mounts under (spec.md §4.10 "Hotplug"): a gvfs mount, the two common
// removable-media roots, and the two generic mount points, each allowing
// at most one path segment below the root.
func DefaultWhitelistRoots(uid, user string) []string {
	return []string{
		"/run/user/" + uid + "/gvfs",
		"/run/media/" + user,
		"/media/" + user,
		"/media",
		"/mnt",
	}
}

// Hotplug tracks which mount paths are currently registered as drive
// devices and computes the add/remove delta against a fresh mount list
// on each tick (spec.md §4.10, §5 "One background task for drive
// hotplug polls the host filesystem every 1s").
type Hotplug struct {
	roots []string
	known map[string]uint32 // mount path -> registered device id
}

// NewHotplug creates a Hotplug scanning under the given whitelist roots.
func NewHotplug(roots []string) *Hotplug {
	return &Hotplug{roots: roots, known: make(map[string]uint32)}
}

// eligible reports whether mountPath sits directly under one of the
// whitelist roots, at most one path segment deep (spec.md §4.10: "with
// at most one path segment below the base").
func (h *Hotplug) eligible(mountPath string) bool {
	clean := filepath.Clean(mountPath)
	for _, root := range h.roots {
		root = filepath.Clean(root)
		if clean == root {
			continue // the root itself is not a device mount
		}
		if !strings.HasPrefix(clean, root+string(filepath.Separator)) {
			continue
		}
		rest := strings.TrimPrefix(clean, root+string(filepath.Separator))
		if rest != "" && !strings.Contains(rest, string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Delta is one tick's outcome: paths newly eligible for registration and
// device ids whose backing mount disappeared.
type Delta struct {
	Added   []string
	Removed []uint32
}

// Tick computes the delta between the currently known registrations and
// the freshly observed mount list. Callers apply Added by registering a
// drive device and recording its id via MarkRegistered, and Removed by
// unregistering those ids (spec.md §8.3 "Hotplug idempotence": running
// Tick twice with no mount changes yields an empty Delta both fields).
func (h *Hotplug) Tick(mounts []string) Delta {
	seen := make(map[string]bool, len(mounts))
	var delta Delta
	for _, m := range mounts {
		if !h.eligible(m) {
			continue
		}
		seen[m] = true
		if _, ok := h.known[m]; !ok {
			delta.Added = append(delta.Added, m)
		}
	}
	for path, id := range h.known {
		if !seen[path] {
			delta.Removed = append(delta.Removed, id)
			delete(h.known, path)
		}
	}
	return delta
}

// MarkRegistered records that mountPath is now backed by device id,
// completing the registration half of a Tick's Added entry.
func (h *Hotplug) MarkRegistered(mountPath string, id uint32) {
	h.known[mountPath] = id
}
