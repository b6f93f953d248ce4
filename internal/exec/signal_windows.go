//go:build windows

package exec

import "os"

func osTerminateSignal() os.Signal {
	return os.Kill
}

func signalProcessGroup(pid int, sig os.Signal) {}

func killProcessGroup(pid int) {}
