package hub

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// inProgressWindow mirrors the original exporter's rule of thumb: an HTTP
// event less than this old when Collect runs is still counted as
// "in progress" in addition to being counted as completed, giving scrapers
// a rough sense of request concurrency without a separate start/end event
// pair.
const inProgressWindow = 4 * time.Second

// requestKey identifies one requests_total accumulator cell: the original
// exporter keys this counter by the full (agent_id, method, path, status)
// tuple since it is the only family that carries a status label.
type requestKey struct {
	agentID string
	method  string
	path    string
	status  string
}

// routeKey identifies one duration/in-progress accumulator cell. These
// families have no status label, so they key on one fewer dimension than
// requestKey.
type routeKey struct {
	agentID string
	method  string
	path    string
}

type workerKey struct {
	agentID string
	pid     string
}

// Exposition drains HttpEvents from State into Prometheus accumulators and
// implements prometheus.Collector directly, the idiomatic Go realization
// of the distilled design's custom collector. Metric names and accumulator
// shapes are carried over from the original exporter's requests_total /
// requests_by_worker_total / requests_duration_seconds / requests_in_progress
// family, renamed with a configurable prefix since this implementation
// serves arbitrary worker pools rather than specifically Uvicorn.
type Exposition struct {
	state  *State
	prefix string
	logger *zap.Logger

	mu               sync.Mutex
	requestsTotal    map[requestKey]float64
	requestsByWorker map[workerKey]float64
	durationSum      map[routeKey]float64
	durationCount    map[routeKey]uint64
	recentEvents     []protocol.HTTPEvent // retained briefly for the in-progress gauge

	cron gocron.Scheduler
}

// NewExposition creates an Exposition over state. prefix defaults to
// "dashfleet" when empty.
func NewExposition(state *State, prefix string, logger *zap.Logger) (*Exposition, error) {
	if prefix == "" {
		prefix = "dashfleet"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Exposition{
		state:            state,
		prefix:           prefix,
		logger:           logger.Named("exposition"),
		requestsTotal:    make(map[requestKey]float64),
		requestsByWorker: make(map[workerKey]float64),
		durationSum:      make(map[routeKey]float64),
		durationCount:    make(map[routeKey]uint64),
		cron:             cron,
	}, nil
}

// StartAggregation schedules the periodic drain of State's HTTP events into
// the accumulators. Call once at hub startup.
func (e *Exposition) StartAggregation(interval time.Duration) error {
	_, err := e.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(e.Aggregate),
	)
	if err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// StopAggregation shuts down the aggregation scheduler.
func (e *Exposition) StopAggregation() error {
	return e.cron.Shutdown()
}

// Aggregate drains State's HTTP event fifo and folds each event into the
// accumulators.
func (e *Exposition) Aggregate() {
	events := e.state.GetHTTPEvents(true)
	if len(events) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range events {
		rk := routeKey{agentID: ev.AgentID, method: ev.Method, path: ev.Path}
		e.requestsTotal[requestKey{agentID: ev.AgentID, method: ev.Method, path: ev.Path, status: strconv.Itoa(ev.Status)}]++
		e.durationSum[rk] += ev.DurationSeconds
		e.durationCount[rk]++
		e.requestsByWorker[workerKey{agentID: ev.AgentID, pid: pidLabel(ev.PID)}]++
	}

	e.recentEvents = append(e.recentEvents, events...)
	cutoff := time.Now().Add(-inProgressWindow)
	kept := e.recentEvents[:0]
	for _, ev := range e.recentEvents {
		if time.Unix(int64(ev.TimeUnix), 0).After(cutoff) {
			kept = append(kept, ev)
		}
	}
	e.recentEvents = kept
}

// Describe satisfies prometheus.Collector. No descriptors are sent up
// front — every family is dynamic (built from whatever agents/routes are
// currently live) — so this collector is declared unchecked at
// registration time, matching the common pattern for collectors whose
// label sets vary at runtime.
func (e *Exposition) Describe(ch chan<- *prometheus.Desc) {}

// Collect satisfies prometheus.Collector, emitting both the drained
// request accumulators and a point-in-time read of per-worker resource
// gauges from State.
func (e *Exposition) Collect(ch chan<- prometheus.Metric) {
	e.mu.Lock()
	requestsTotal := cloneRequestMap(e.requestsTotal)
	requestsByWorker := cloneWorkerMap(e.requestsByWorker)
	durationSum := cloneRouteMap(e.durationSum)
	durationCount := make(map[routeKey]uint64, len(e.durationCount))
	for k, v := range e.durationCount {
		durationCount[k] = v
	}
	inProgress := e.inProgressLocked()
	e.mu.Unlock()

	requestsTotalDesc := prometheus.NewDesc(e.name("requests_total"), "Total HTTP requests observed.", []string{"agent_id", "method", "path", "status"}, nil)
	for rk, v := range requestsTotal {
		ch <- prometheus.MustNewConstMetric(requestsTotalDesc, prometheus.CounterValue, v, rk.agentID, rk.method, rk.path, rk.status)
	}

	byWorkerDesc := prometheus.NewDesc(e.name("requests_by_worker_total"), "Total HTTP requests observed, by worker.", []string{"agent_id", "pid"}, nil)
	for wk, v := range requestsByWorker {
		ch <- prometheus.MustNewConstMetric(byWorkerDesc, prometheus.CounterValue, v, wk.agentID, wk.pid)
	}

	durationDesc := prometheus.NewDesc(e.name("requests_duration_seconds"), "HTTP request duration in seconds.", []string{"agent_id", "method", "path"}, nil)
	for rk, sum := range durationSum {
		ch <- prometheus.MustNewConstHistogram(durationDesc, durationCount[rk], sum, nil, rk.agentID, rk.method, rk.path)
	}

	inProgressDesc := prometheus.NewDesc(e.name("requests_in_progress"), "HTTP requests observed within the in-progress window.", []string{"agent_id", "method", "path"}, nil)
	for rk, v := range inProgress {
		ch <- prometheus.MustNewConstMetric(inProgressDesc, prometheus.GaugeValue, v, rk.agentID, rk.method, rk.path)
	}

	e.collectWorkerGauges(ch)
}

func (e *Exposition) inProgressLocked() map[routeKey]float64 {
	out := make(map[routeKey]float64)
	cutoff := time.Now().Add(-inProgressWindow)
	for _, ev := range e.recentEvents {
		if !time.Unix(int64(ev.TimeUnix), 0).After(cutoff) {
			continue
		}
		rk := routeKey{agentID: ev.AgentID, method: ev.Method, path: ev.Path}
		out[rk]++
	}
	return out
}

func (e *Exposition) collectWorkerGauges(ch chan<- prometheus.Metric) {
	servers := e.state.GetAllServers()

	cpuDesc := prometheus.NewDesc(e.name("worker_cpu_percent"), "Worker process CPU percent.", []string{"agent_id", "pid"}, nil)
	memDesc := prometheus.NewDesc(e.name("worker_memory_bytes"), "Worker process RSS bytes.", []string{"agent_id", "pid"}, nil)
	threadsDesc := prometheus.NewDesc(e.name("worker_thread_count"), "Worker process thread count.", []string{"agent_id", "pid"}, nil)
	uptimeDesc := prometheus.NewDesc(e.name("worker_uptime_seconds"), "Worker process uptime in seconds.", []string{"agent_id", "pid"}, nil)
	cpuTotalDesc := prometheus.NewDesc(e.name("total_cpu_percent"), "Aggregated CPU percent across all workers of an agent.", []string{"agent_id"}, nil)
	memTotalDesc := prometheus.NewDesc(e.name("total_memory_bytes"), "Aggregated RSS bytes across all workers of an agent.", []string{"agent_id"}, nil)
	workerCountDesc := prometheus.NewDesc(e.name("active_worker_count"), "Number of live workers for an agent.", []string{"agent_id"}, nil)
	masterUptimeDesc := prometheus.NewDesc(e.name("master_uptime_seconds"), "Master process uptime in seconds.", []string{"agent_id"}, nil)

	now := float64(time.Now().Unix())

	for agentID, snap := range servers {
		var cpuTotal float64
		var memTotal uint64

		for pid, w := range snap.Workers {
			ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.GaugeValue, w.CPUPercent, agentID, pid)
			ch <- prometheus.MustNewConstMetric(memDesc, prometheus.GaugeValue, float64(w.MemoryRSSBytes), agentID, pid)
			ch <- prometheus.MustNewConstMetric(threadsDesc, prometheus.GaugeValue, float64(w.NumThreads), agentID, pid)
			if w.StartTimeUnix > 0 {
				ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, now-float64(w.StartTimeUnix), agentID, pid)
			}
			cpuTotal += w.CPUPercent
			memTotal += w.MemoryRSSBytes
		}

		ch <- prometheus.MustNewConstMetric(cpuTotalDesc, prometheus.GaugeValue, cpuTotal, agentID)
		ch <- prometheus.MustNewConstMetric(memTotalDesc, prometheus.GaugeValue, float64(memTotal), agentID)
		ch <- prometheus.MustNewConstMetric(workerCountDesc, prometheus.GaugeValue, float64(len(snap.Workers)), agentID)

		if startUnix, ok := snap.Master["start_time_unix"]; ok {
			if v, ok := toFloat(startUnix); ok {
				ch <- prometheus.MustNewConstMetric(masterUptimeDesc, prometheus.GaugeValue, now-v, agentID)
			}
		}
	}
}

func (e *Exposition) name(metric string) string {
	return e.prefix + "_" + metric
}

func pidLabel(pid int32) string {
	return strconv.Itoa(int(pid))
}

func cloneRequestMap(m map[requestKey]float64) map[requestKey]float64 {
	out := make(map[requestKey]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRouteMap(m map[routeKey]float64) map[routeKey]float64 {
	out := make(map[routeKey]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneWorkerMap(m map[workerKey]float64) map[workerKey]float64 {
	out := make(map[workerKey]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
