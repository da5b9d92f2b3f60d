//go:build !linux && !darwin

package main

import (
	"fmt"
	"runtime"
)

func statDisk(string) (diskUsage, error) {
	return diskUsage{}, fmt.Errorf("disk usage is not supported on %s", runtime.GOOS)
}
