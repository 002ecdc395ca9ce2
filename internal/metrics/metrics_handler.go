package metrics

import (
	"sync"
	"time"

	"arbiter/logger"
)

// Metric is a structured metric event emitted by a component.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes emitted metric events.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler. Zero is never issued.
type MetricHandlerID uint64

var (
	handlersMu sync.RWMutex
	handlers   = make(map[MetricHandlerID]MetricHandler)
	nextID     MetricHandlerID
)

// RegisterMetricHandler adds a handler that receives every emitted metric.
// A nil handler is ignored and yields a zero id.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}

	handlersMu.Lock()
	defer handlersMu.Unlock()

	nextID++
	handlers[nextID] = handler
	return nextID
}

// UnregisterMetricHandler removes a handler added by RegisterMetricHandler.
func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}

	handlersMu.Lock()
	delete(handlers, id)
	handlersMu.Unlock()
}

// EmitMetric logs the metric at debug level and hands it to every registered
// handler. An empty name is dropped. metricType defaults to "counter".
func EmitMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) {
	if name == "" {
		return
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	event := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    cloneFields(fields),
	}

	logFields := cloneFields(event.Fields)
	logFields["metric"] = name
	logFields["metric_type"] = metricType
	logFields["value"] = value
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	dispatchMetric(event)
}

func dispatchMetric(metric Metric) {
	handlersMu.RLock()
	active := make([]MetricHandler, 0, len(handlers))
	for _, h := range handlers {
		active = append(active, h)
	}
	handlersMu.RUnlock()

	for _, h := range active {
		h(metric)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
