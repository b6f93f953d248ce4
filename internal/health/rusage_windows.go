//go:build windows

package health

// processCPUSeconds has no portable syscall.Rusage equivalent on
// Windows; CPUPercent stays at its last known value on this platform.
func processCPUSeconds() float64 { return 0 }
