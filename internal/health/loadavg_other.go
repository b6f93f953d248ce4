//go:build !linux

package health

// systemLoadAverage has no portable equivalent outside /proc; other
// platforms report zero load averages.
func systemLoadAverage() (load1, load5, load15 float64) { return 0, 0, 0 }
