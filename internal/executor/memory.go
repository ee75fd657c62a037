package executor

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// MemoryFunc reports the current process's resident memory in MB.
// Injectable so batch-size behavior is testable at fixed usage levels.
type MemoryFunc func() (uint64, error)

// ProcessMemoryMB reports this process's resident set size in MB.
func ProcessMemoryMB() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS / (1024 * 1024), nil
}
