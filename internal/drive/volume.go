package drive

import "golang.org/x/sys/unix"

// volumeStats is the subset of statvfs(2) the QUERY_VOLUME_INFORMATION
// handlers need (spec.md §4.10: "stats from host statvfs").
type volumeStats struct {
	totalUnits   uint64
	freeUnits    uint64
	bytesPerUnit uint32
}

// statVFS reads host filesystem statistics for the drive's base path,
// grounded on golang.org/x/sys/unix.Statfs (SPEC_FULL.md §11: x/sys/unix
// wired into internal/drive for QUERY_VOLUME_INFORMATION).
func statVFS(path string) (volumeStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return volumeStats{}, err
	}
	bsize := uint32(st.Bsize)
	return volumeStats{
		totalUnits:   st.Blocks,
		freeUnits:    st.Bfree,
		bytesPerUnit: bsize,
	}, nil
}
