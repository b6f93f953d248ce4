//go:build !linux

package exec

import osexec "os/exec"

// applyProcessIsolation is a no-op outside Linux: cgroup v2 quotas are
// Linux-only, and the child is not put in a process group of its own,
// so group signals do not reach it; only the direct Process.Kill of the
// second termination phase does.
func applyProcessIsolation(cmd *osexec.Cmd, limits ResourceLimits) {}

// CreateRunCgroup, AttachRunCgroup, and RemoveRunCgroup are no-ops
// outside Linux, matching cgroup_linux.go's signatures so Engine.spawn
// can call them without platform branching.
func CreateRunCgroup(runID string, limits ResourceLimits) (string, error) { return "", nil }

func AttachRunCgroup(cgPath string, pid int) error { return nil }

func RemoveRunCgroup(runID string) error { return nil }

// ReadPeakMemoryKB always reports 0 outside Linux: cgroup v2 memory
// accounting is Linux-only.
func ReadPeakMemoryKB(cgPath string) int64 { return 0 }
