// Package sysinfo gathers the process/runtime snapshot StatusSurface's
// "system" block reports. This is deliberately implemented on the
// standard library: it is a static, process-local runtime.MemStats read,
// not a domain concern any third-party dependency in the retrieved pack
// models (see DESIGN.md).
package sysinfo

import "runtime"

// Snapshot is a point-in-time process resource summary.
type Snapshot struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGoroutine   int    `json:"num_goroutine"`
	NumCPU         int    `json:"num_cpu"`
	GCPauseTotalNS uint64 `json:"gc_pause_total_ns"`
}

// Collect reads the current runtime snapshot.
func Collect() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Snapshot{
		AllocBytes:     m.Alloc,
		SysBytes:       m.Sys,
		NumGoroutine:   runtime.NumGoroutine(),
		NumCPU:         runtime.NumCPU(),
		GCPauseTotalNS: m.PauseTotalNs,
	}
}
