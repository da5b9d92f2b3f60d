//go:build linux || darwin

package main

import "golang.org/x/sys/unix"

func statDisk(path string) (diskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return diskUsage{}, err
	}
	bsize := uint64(st.Bsize)
	return diskUsage{
		Filesystem: filesystemName(&st),
		Path:       path,
		Total:      st.Blocks * bsize,
		Free:       st.Bfree * bsize,
		Avail:      st.Bavail * bsize,
	}, nil
}
