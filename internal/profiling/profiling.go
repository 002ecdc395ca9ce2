// Package profiling starts continuous profiling against a Pyroscope server.
package profiling

import (
	"fmt"

	"github.com/grafana/pyroscope-go"

	appconfig "arbiter/config"
	"arbiter/logger"
)

// Profiler is a running profiling session.
type Profiler interface {
	Stop() error
}

type noopProfiler struct{}

func (noopProfiler) Stop() error { return nil }

// Start begins profiling when cfg.Enabled is set. The returned profiler is
// never nil.
func Start(cfg appconfig.ProfilingConfig, env string, log *logger.Log) (Profiler, error) {
	if !cfg.Enabled {
		return noopProfiler{}, nil
	}
	if cfg.ServerAddress == "" {
		return noopProfiler{}, fmt.Errorf("profiling enabled without server address")
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            map[string]string{"env": env},
		Logger:          log.WithComponent("profiling"),
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return noopProfiler{}, fmt.Errorf("failed to start profiler: %w", err)
	}

	log.WithComponent("profiling").WithFields(logger.Fields{
		"server":      cfg.ServerAddress,
		"application": cfg.ApplicationName,
	}).Info("continuous profiling started")
	return profiler, nil
}
