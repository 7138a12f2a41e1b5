// Package drive implements the Windows-compatible filesystem emulation
// device (C10): CREATE/CLOSE/READ/WRITE, volume info, directory queries
// with glob pattern matching, delete-on-close, attribute mapping, and
// Linux mount-table hotplug enumeration (spec.md §4.10).
//
// Grounded on channels/rdpdr/disk/disk_file.c and disk_main.c
// (original_source/) for the path-join/backslash-conversion and
// create-disposition-to-open-flag mapping this file implements; the
// teacher (dittofs) has no client-side redirected-drive equivalent, but
// its own pkg/server request handlers (path validation under an export
// root) ground the "never escape the base path" invariant (spec.md §8.6)
// in the same pattern dittofs uses for NFS/SMB export roots.
package drive

import (
	"path/filepath"
	"strings"
)

// fullPath converts an RDPDR wire path (backslash-separated, from a
// CREATE or QUERY_DIRECTORY IRP) into a host path rooted at basePath.
// Backslashes become forward slashes, a trailing slash is stripped, and
// the result is joined under basePath and cleaned so it can never escape
// it (spec.md §4.10, §8.6 "Drive path safety").
func fullPath(basePath, wirePath string) string {
	converted := strings.ReplaceAll(wirePath, `\`, "/")
	converted = strings.TrimSuffix(converted, "/")
	converted = strings.TrimPrefix(converted, "/")

	joined := filepath.Join(basePath, converted)
	// filepath.Join already cleans ".."  segments relative to basePath,
	// but guard explicitly: any result that isn't basePath itself or
	// nested under it is rejected by falling back to basePath.
	cleanBase := filepath.Clean(basePath)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return cleanBase
	}
	return joined
}

// splitPattern splits a QUERY_DIRECTORY wire path into the directory
// portion (already opened via CREATE) and the glob pattern making up
// its basename (spec.md §4.10: "pattern (the basename portion of the
// supplied path, interpreted as a glob supporting * and ?)").
func splitPattern(wirePath string) (dir, pattern string) {
	converted := strings.ReplaceAll(wirePath, `\`, "/")
	idx := strings.LastIndex(converted, "/")
	if idx < 0 {
		return "", converted
	}
	return converted[:idx], converted[idx+1:]
}
