package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	loggerPackage = "arbiter/logger."
	logrusPackage = "github.com/sirupsen/logrus"

	// runtime.Callers, callSite, Fire and logrus.LevelHooks.Fire
	callerSkip = 4
)

// callerHook points entry.Caller at the first frame outside logrus and the
// Entry/Log wrappers, so the "file" field names the real call site.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := callSite(callerSkip); ok {
		entry.Caller = &frame
	}
	return nil
}

func callSite(skip int) (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !wrapperFrame(frame) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func wrapperFrame(frame runtime.Frame) bool {
	if strings.HasPrefix(frame.Function, logrusPackage) {
		return true
	}
	return strings.HasPrefix(frame.Function, loggerPackage) && !strings.HasSuffix(frame.File, "_test.go")
}
