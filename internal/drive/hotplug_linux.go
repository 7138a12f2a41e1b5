//go:build linux

package drive

import (
	"bufio"
	"os"
	"strings"
)

// ReadMounts parses /proc/mounts into a list of mount points, the Linux
// backend for hotplug enumeration (spec.md §4.10: "Every 1s, read
// /proc/mounts..."). BSD (getmntinfo) and Solaris (/etc/mnttab)
// variants are named as alternatives in spec.md but are out of scope
// for this single-OS build (SPEC_FULL.md §13) — ReadMounts is the one
// seam a non-Linux backend would implement against the same signature.
func ReadMounts() ([]string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mounts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		mounts = append(mounts, unescapeMountPath(fields[1]))
	}
	return mounts, sc.Err()
}

// unescapeMountPath decodes the octal escapes /proc/mounts uses for
// spaces, tabs, backslashes and newlines in mount paths (e.g. "\040"
// for a literal space).
func unescapeMountPath(path string) string {
	if !strings.Contains(path, "\\") {
		return path
	}
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			if v, ok := octal3(path[i+1 : i+4]); ok {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return b.String()
}

func octal3(s string) (int, bool) {
	if len(s) != 3 {
		return 0, false
	}
	v := 0
	for _, c := range s {
		if c < '0' || c > '7' {
			return 0, false
		}
		v = v*8 + int(c-'0')
	}
	return v, true
}
