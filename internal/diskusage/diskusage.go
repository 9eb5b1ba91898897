package diskusage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type Usage struct {
	Path         string  `json:"path"`
	TotalBytes   uint64  `json:"total_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
	UsedPercent  float64 `json:"used_percent"`
	BackupsBytes int64   `json:"backups_bytes"`
}

// statfs is swapped out in tests.
var statfs = unix.Statfs

// Stat reports usage of the filesystem holding path. Free space is what an
// unprivileged writer can use.
func Stat(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs failed for %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	used := (st.Blocks - st.Bfree) * bsize

	u := Usage{
		Path:       path,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  used,
	}
	if total > 0 {
		// Rounded to one decimal so small fluctuations do not produce a
		// new value on every poll.
		u.UsedPercent = float64(int(float64(used)/float64(total)*1000+0.5)) / 10
	}
	return u, nil
}
