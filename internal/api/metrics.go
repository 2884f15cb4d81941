package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// HostStats показатели процесса и хоста для /api/stats
type HostStats struct {
	StartTime time.Time
}

func NewHostStats() *HostStats {
	return &HostStats{StartTime: time.Now()}
}

// Uptime время работы в виде "1д 2ч 3м 4с"
func (hs *HostStats) Uptime() string {
	return formatUptime(time.Since(hs.StartTime))
}

func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}

// MemoryMB занятая куча в мегабайтах
func (hs *HostStats) MemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// CPUPercent загрузка CPU процессом; при ошибке берётся системная
func (hs *HostStats) CPUPercent() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if pct, perr := proc.CPUPercent(); perr == nil {
			return pct, nil
		}
	}
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}
	return percents[0], nil
}

// Snapshot сводка для ответа API
func (hs *HostStats) Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	cpuPercent, _ := hs.CPUPercent()

	return map[string]interface{}{
		"uptime":        hs.Uptime(),
		"memory_mb":     fmt.Sprintf("%.2f", float64(m.Alloc)/1024/1024),
		"heap_sys_mb":   fmt.Sprintf("%.2f", float64(m.HeapSys)/1024/1024),
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
		"cpu_percent":   fmt.Sprintf("%.2f", cpuPercent),
		"server_time":   time.Now().Unix(),
		"go_version":    runtime.Version(),
		"num_cpu":       runtime.NumCPU(),
		"started_at_ts": hs.StartTime.Unix(),
	}
}
