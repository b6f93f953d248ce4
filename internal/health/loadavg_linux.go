//go:build linux

package health

import (
	"os"
	"strconv"
	"strings"
)

// systemLoadAverage reads the 1/5/15-minute load averages from
// /proc/loadavg. Any read or parse failure yields zeros.
func systemLoadAverage() (load1, load5, load15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	load1, _ = strconv.ParseFloat(fields[0], 64)
	load5, _ = strconv.ParseFloat(fields[1], 64)
	load15, _ = strconv.ParseFloat(fields[2], 64)
	return load1, load5, load15
}
