//go:build linux

package exec

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

const cgroupRoot = "/sys/fs/cgroup/broker"

// applyProcessIsolation puts cmd in its own process group, so the
// two-phase termination signal reaches the whole group, not just the
// direct child. Memory and pid quotas are enforced separately by
// CreateRunCgroup/AttachRunCgroup once the child's pid is known.
func applyProcessIsolation(cmd *osexec.Cmd, limits ResourceLimits) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// cgroupsAvailable reports whether cgroup v2 is mounted at
// /sys/fs/cgroup, the precondition for CreateRunCgroup.
func cgroupsAvailable() bool {
	return detectCgroupV2() == nil
}

func cgroupPath(runID string) string {
	return filepath.Join(cgroupRoot, runID)
}

// CreateRunCgroup creates and configures a cgroup v2 directory for one
// execution run, returning its path. Grounded on the memory.max/pids.max
// write pattern used for container-level limits, applied here per
// subprocess run instead of per container.
func CreateRunCgroup(runID string, limits ResourceLimits) (string, error) {
	if limits.MemLimitMB <= 0 && limits.PidsLimit <= 0 {
		return "", nil
	}
	if !cgroupsAvailable() {
		return "", nil
	}

	cgPath := cgroupPath(runID)
	if err := os.MkdirAll(cgPath, 0o755); err != nil {
		return "", fmt.Errorf("create cgroup %s: %w", cgPath, err)
	}

	if limits.MemLimitMB > 0 {
		memBytes := limits.MemLimitMB * 1024 * 1024
		if err := os.WriteFile(filepath.Join(cgPath, "memory.max"), []byte(strconv.FormatInt(memBytes, 10)), 0o644); err != nil {
			return "", fmt.Errorf("set memory.max: %w", err)
		}
	}
	if limits.PidsLimit > 0 {
		if err := os.WriteFile(filepath.Join(cgPath, "pids.max"), []byte(strconv.FormatInt(limits.PidsLimit, 10)), 0o644); err != nil {
			return "", fmt.Errorf("set pids.max: %w", err)
		}
	}
	return cgPath, nil
}

// AttachRunCgroup moves pid into the cgroup at cgPath. A blank cgPath
// (no cgroup was created for this run) is a no-op.
func AttachRunCgroup(cgPath string, pid int) error {
	if cgPath == "" {
		return nil
	}
	procsPath := filepath.Join(cgPath, "cgroup.procs")
	if err := os.WriteFile(procsPath, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("attach pid %d to cgroup: %w", pid, err)
	}
	return nil
}

// ReadPeakMemoryKB reads a run's peak resident memory from its cgroup,
// preferring memory.peak (kernel 5.19+) and falling back to
// memory.current. A blank cgPath or an unreadable file reports 0.
func ReadPeakMemoryKB(cgPath string) int64 {
	if cgPath == "" {
		return 0
	}
	for _, name := range []string{"memory.peak", "memory.current"} {
		data, err := os.ReadFile(filepath.Join(cgPath, name))
		if err != nil {
			continue
		}
		bytes, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			continue
		}
		return bytes / 1024
	}
	return 0
}

// RemoveRunCgroup kills any surviving processes in the cgroup, then
// removes it.
func RemoveRunCgroup(runID string) error {
	cgPath := cgroupPath(runID)
	killCgroupProcesses(cgPath)
	if err := os.RemoveAll(cgPath); err != nil {
		return fmt.Errorf("remove cgroup %s: %w", cgPath, err)
	}
	return nil
}

func killCgroupProcesses(cgPath string) {
	data, err := os.ReadFile(filepath.Join(cgPath, "cgroup.procs"))
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}

func detectCgroupV2() error {
	var stat unix.Statfs_t
	if err := unix.Statfs("/sys/fs/cgroup", &stat); err != nil {
		return fmt.Errorf("stat /sys/fs/cgroup: %w", err)
	}
	if stat.Type != unix.CGROUP2_SUPER_MAGIC {
		return fmt.Errorf("cgroup v2 not mounted at /sys/fs/cgroup")
	}
	return nil
}
