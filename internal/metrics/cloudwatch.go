package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "arbiter/config"
	"arbiter/logger"
)

const (
	cloudWatchFlushInterval = time.Minute
	// PutMetricData accepts at most 1000 datums per call.
	cloudWatchBatchSize = 1000
)

type metricDataPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type aggregate struct {
	component string
	name      string
	gauge     bool
	value     float64
	dims      map[string]string
}

// CloudWatchPublisher aggregates emitted metric events and publishes them to
// CloudWatch on a fixed interval. Counters are summed and gauges keep their
// last value within one interval.
type CloudWatchPublisher struct {
	client    metricDataPutter
	namespace string
	interval  time.Duration
	log       *logger.Entry

	mu      sync.Mutex
	pending map[string]*aggregate

	handlerID MetricHandlerID
	wg        sync.WaitGroup
}

// InitCloudWatch builds a publisher from cfg and registers it as a metric
// handler. Static credentials are used when both keys are configured,
// otherwise the default AWS credential chain applies.
func InitCloudWatch(ctx context.Context, cfg appconfig.CloudWatchConfig) (*CloudWatchPublisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	p := newCloudWatchPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.Namespace, cloudWatchFlushInterval)
	p.handlerID = RegisterMetricHandler(p.handle)

	p.log.WithFields(logger.Fields{
		"region":    awsCfg.Region,
		"namespace": p.namespace,
	}).Info("initialized CloudWatch publisher")
	return p, nil
}

func newCloudWatchPublisher(client metricDataPutter, namespace string, interval time.Duration) *CloudWatchPublisher {
	if namespace == "" {
		namespace = "Arbiter"
	}
	if interval <= 0 {
		interval = cloudWatchFlushInterval
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		interval:  interval,
		log:       logger.GetLogger().WithComponent("cloudwatch"),
		pending:   make(map[string]*aggregate),
	}
}

// Start flushes on the publisher's interval until ctx is done, then flushes
// once more.
func (p *CloudWatchPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.flush(flushCtx)
				cancel()
				return
			case <-ticker.C:
				p.flush(ctx)
			}
		}
	}()
}

// Stop unregisters the handler and waits for the final flush.
func (p *CloudWatchPublisher) Stop() {
	UnregisterMetricHandler(p.handlerID)
	p.wg.Wait()
}

func (p *CloudWatchPublisher) handle(m Metric) {
	value, ok := toFloat64(m.Value)
	if !ok {
		return
	}

	dims := map[string]string{"component": m.Component}
	for k, v := range m.Fields {
		if s, ok := v.(string); ok && s != "" {
			dims[k] = s
		}
	}
	key := aggregateKey(m.Name, dims)

	p.mu.Lock()
	defer p.mu.Unlock()

	agg, ok := p.pending[key]
	if !ok {
		agg = &aggregate{component: m.Component, name: m.Name, gauge: m.Type == "gauge", dims: dims}
		p.pending[key] = agg
	}
	if agg.gauge {
		agg.value = value
	} else {
		agg.value += value
	}
}

func aggregateKey(name string, dims map[string]string) string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(dims[k])
	}
	return b.String()
}

func (p *CloudWatchPublisher) drain() []cwtypes.MetricDatum {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]*aggregate)
	p.mu.Unlock()

	data := make([]cwtypes.MetricDatum, 0, len(pending))
	now := time.Now()
	for _, agg := range pending {
		dims := make([]cwtypes.Dimension, 0, len(agg.dims))
		for k, v := range agg.dims {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
		}
		sort.Slice(dims, func(i, j int) bool { return *dims[i].Name < *dims[j].Name })

		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(agg.name),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(agg.value),
		})
	}
	return data
}

func (p *CloudWatchPublisher) flush(ctx context.Context) {
	data := p.drain()
	if len(data) == 0 {
		return
	}

	for start := 0; start < len(data); start += cloudWatchBatchSize {
		end := start + cloudWatchBatchSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data[start:end],
		}); err != nil {
			p.log.WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}
	}
	p.log.WithField("datums", len(data)).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
