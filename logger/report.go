package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type streamStat struct {
	messages int64
	bytes    int64
	skipped  int64
}

var (
	warnCounts  sync.Map // component -> *int64
	errorCounts sync.Map // component -> *int64
	streams     sync.Map // exchange:PAIR -> *streamStat
)

func counter(m *sync.Map, key string) *int64 {
	v, _ := m.LoadOrStore(key, new(int64))
	return v.(*int64)
}

func recordWarn(component string) {
	atomic.AddInt64(counter(&warnCounts, component), 1)
}

func recordError(component string) {
	atomic.AddInt64(counter(&errorCounts, component), 1)
}

func stream(key string) *streamStat {
	v, _ := streams.LoadOrStore(key, &streamStat{})
	return v.(*streamStat)
}

// RecordStreamMessage counts one accepted feed message for a stream key.
func RecordStreamMessage(key string, size int) {
	st := stream(key)
	atomic.AddInt64(&st.messages, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// RecordStreamSkip counts one rejected feed message for a stream key.
func RecordStreamSkip(key string) {
	atomic.AddInt64(&stream(key).skipped, 1)
}

// StreamCounts returns accepted and skipped message counts for a stream key.
func StreamCounts(key string) (messages, skipped int64) {
	v, ok := streams.Load(key)
	if !ok {
		return 0, 0
	}
	st := v.(*streamStat)
	return atomic.LoadInt64(&st.messages), atomic.LoadInt64(&st.skipped)
}

// StartReport logs a runtime report every interval until ctx is done.
// extra, when non-nil, contributes additional fields to each report.
func StartReport(ctx context.Context, log *Log, interval time.Duration, extra func() Fields) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log, extra)
			}
		}
	}()
}

func snapshotCounters(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

func reportFields() Fields {
	streamData := map[string]map[string]int64{}
	streams.Range(func(k, v any) bool {
		st := v.(*streamStat)
		streamData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&st.messages),
			"bytes":    atomic.LoadInt64(&st.bytes),
			"skipped":  atomic.LoadInt64(&st.skipped),
		}
		return true
	})

	return Fields{
		"goroutines": runtime.NumGoroutine(),
		"warns":      snapshotCounters(&warnCounts),
		"errors":     snapshotCounters(&errorCounts),
		"streams":    streamData,
	}
}

func logReport(log *Log, extra func() Fields) {
	fields := reportFields()

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		fields["cpu_percent"] = cpuPercent[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}
	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		fields["net_bytes_sent"] = int64(netStats[0].BytesSent)
		fields["net_bytes_recv"] = int64(netStats[0].BytesRecv)
	}

	if extra != nil {
		for k, v := range extra() {
			fields[k] = v
		}
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
