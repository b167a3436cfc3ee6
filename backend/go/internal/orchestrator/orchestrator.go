package orchestrator

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPhaseRunning 表示同名阶段已经在运行，本次触发被拒绝。
	ErrPhaseRunning = errors.New("phase already running")
	// ErrUnknownPhase 表示阶段名未注册。
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrSchedulerRunning 表示调度器已经启动。
	ErrSchedulerRunning = errors.New("scheduler already running")
)

// PhaseFunc 执行一个阶段，返回写入执行记录的元数据。
type PhaseFunc func(ctx context.Context) (map[string]interface{}, error)

// Phase 是调度表中的一行。
type Phase struct {
	Name      string
	Every     time.Duration
	Enabled   bool
	Exclusive bool // 同名阶段是否单飞
	Run       PhaseFunc
}

// criticalError 标记会中止整个工作流的失败。
type criticalError struct{ err error }

func (c criticalError) Error() string { return c.err.Error() }
func (c criticalError) Unwrap() error { return c.err }

// Critical 把 err 标记为 critical_error。
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return criticalError{err: err}
}

// IsCritical 报告 err 是否被标记为 critical_error。
func IsCritical(err error) bool {
	var c criticalError
	return errors.As(err, &c)
}

// RunStore 是调度器用到的存储子集。
type RunStore interface {
	AppendExecutionLog(ctx context.Context, record models.AgentRunRecord) error
	SetState(ctx context.Context, key string, value interface{}) error
}

// HealthCheck 检查一个外部依赖。
type HealthCheck func(ctx context.Context) error

// PhaseStatus 是对外展示的阶段状态。
type PhaseStatus struct {
	Name    string              `json:"name"`
	Enabled bool                `json:"enabled"`
	Every   string              `json:"every"`
	Running bool                `json:"running"`
	NextDue *time.Time          `json:"next_due,omitempty"`
	Metrics models.PhaseMetrics `json:"metrics"`
}

type phaseState struct {
	phase   Phase
	running bool
	nextDue time.Time
}

// Orchestrator 用一个循环驱动阶段表，并保证同名阶段同一时间最多只有一个在运行。
type Orchestrator struct {
	store  RunStore
	clock  Clock
	tick   time.Duration
	log    *logger.Logger
	checks map[string]HealthCheck

	mu       sync.Mutex
	phases   map[string]*phaseState
	order    []string
	started  bool
	ticker   Ticker
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight *sync.WaitGroup // 每次 Start 新建，超时的 Stop 不影响下一轮
	metrics  models.RunnerMetrics
}

// Option 配置 Orchestrator。
type Option func(*Orchestrator)

// WithClock 设置时间来源。
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTick 设置调度循环的检查间隔。
func WithTick(d time.Duration) Option {
	return func(o *Orchestrator) { o.tick = d }
}

// WithLogger 设置日志记录器。
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithHealthCheck 注册一个依赖健康检查，结果出现在 system_health 中。
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o *Orchestrator) { o.checks[name] = check }
}

// New 创建一个尚未启动的 Orchestrator。
func New(st RunStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		clock:    RealClock(),
		tick:     time.Second,
		log:      logger.Discard(),
		checks:   make(map[string]HealthCheck),
		phases:   make(map[string]*phaseState),
		inflight: &sync.WaitGroup{},
		metrics: models.RunnerMetrics{
			Phases: make(map[string]models.PhaseMetrics),
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register 把阶段加入调度表。调度器运行时不能注册。
func (o *Orchestrator) Register(phases ...Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrSchedulerRunning
	}
	for _, p := range phases {
		if p.Name == "" || p.Run == nil {
			return fmt.Errorf("phase %q: name and run function are required", p.Name)
		}
		if _, exists := o.phases[p.Name]; exists {
			return fmt.Errorf("phase %q registered twice", p.Name)
		}
		o.phases[p.Name] = &phaseState{phase: p}
		o.order = append(o.order, p.Name)
	}
	return nil
}

// Now 返回调度器的当前时间。
func (o *Orchestrator) Now() time.Time {
	return o.clock.Now()
}

// After 在调度器的时钟上等待 d。
func (o *Orchestrator) After(d time.Duration) <-chan time.Time {
	return o.clock.After(d)
}

// Start 启动调度循环，所有启用的阶段从现在起按各自的节奏触发。
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrSchedulerRunning
	}
	now := o.clock.Now()
	for _, st := range o.phases {
		st.nextDue = now.Add(st.phase.Every)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.ticker = o.clock.NewTicker(o.tick)
	o.cancel = cancel
	o.loopDone = make(chan struct{})
	o.inflight = &sync.WaitGroup{}
	o.started = true
	go o.loop(loopCtx, o.ticker, o.loopDone)
	o.mu.Unlock()

	o.log.WithPayload(map[string]interface{}{"phases": o.order, "tick": o.tick.String()}).Info("调度器已启动")
	o.persistHealth(ctx)
	return nil
}

// Stop 停止触发新的阶段，等待循环和进行中的阶段结束 (受 ctx 限制)，然后持久化最终的指标和健康状态。
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.ticker.Stop()
	o.cancel()
	o.started = false
	loopDone := o.loopDone
	inflight := o.inflight
	o.mu.Unlock()

	<-loopDone
	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()

	var waitErr error
	select {
	case <-drained:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for in-flight phases: %w", ctx.Err())
		o.log.Warn("停止超时，仍有阶段在运行")
	}

	persistCtx := context.WithoutCancel(ctx)
	o.persistMetrics(persistCtx)
	o.persistHealth(persistCtx)
	o.log.Info("调度器已停止")
	return waitErr
}

// Running 报告调度循环是否在运行。
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

func (o *Orchestrator) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			o.dispatchDue(ctx, now)
		}
	}
}

// dispatchDue 在各自的 goroutine 中启动到期的阶段，避免一个阶段的 I/O 阻塞其他阶段的计时。
func (o *Orchestrator) dispatchDue(ctx context.Context, now time.Time) {
	o.mu.Lock()
	var due []string
	for _, name := range o.order {
		st := o.phases[name]
		if !st.phase.Enabled || st.phase.Every <= 0 || now.Before(st.nextDue) {
			continue
		}
		st.nextDue = now.Add(st.phase.Every)
		due = append(due, name)
	}
	inflight := o.inflight
	o.mu.Unlock()

	// 进行中的阶段不随 Stop 取消
	runCtx := context.WithoutCancel(ctx)
	for _, name := range due {
		inflight.Add(1)
		go func(name string) {
			defer inflight.Done()
			_, _ = o.RunPhase(runCtx, name)
		}(name)
	}
}

// RunPhase 通过单飞保护执行一个阶段。阶段自身的失败体现在返回记录的状态中，
// 只有阶段不存在或正在运行时才返回错误。
func (o *Orchestrator) RunPhase(ctx context.Context, name string) (models.AgentRunRecord, error) {
	st, err := o.acquire(name)
	if err != nil {
		return models.AgentRunRecord{}, err
	}

	start := o.clock.Now()
	log := o.log.Named("orchestrator."+name, uuid.NewString())
	log.Debug("阶段开始")
	meta, runErr := safeRun(ctx, st.phase.Run)
	duration := o.clock.Now().Sub(start)

	rec := models.AgentRunRecord{
		ID:         uuid.NewString(),
		Agent:      name,
		Status:     models.RunStatusSuccess,
		Metadata:   meta,
		DurationMs: duration.Milliseconds(),
		Timestamp:  start.UTC(),
	}
	if runErr != nil {
		rec.Status = models.RunStatusError
		if IsCritical(runErr) {
			rec.Status = models.RunStatusCriticalError
		}
		rec.Error = runErr.Error()
	}

	o.release(st, rec)

	if runErr != nil {
		info := models.NewErrorInfo(runErr)
		info.Phase = name
		log.WithError(info).Error("阶段失败")
	} else {
		log.WithPayload(map[string]interface{}{"duration_ms": rec.DurationMs}).Info("阶段完成")
	}

	if err := o.store.AppendExecutionLog(ctx, rec); err != nil {
		log.WithError(models.NewErrorInfo(err)).Error("无法写入执行日志")
	}
	o.persistMetrics(ctx)
	return rec, nil
}

func (o *Orchestrator) acquire(name string) (*phaseState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.phases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, name)
	}
	if st.running && st.phase.Exclusive {
		pm := o.metrics.Phases[name]
		pm.Rejected++
		o.metrics.Phases[name] = pm
		o.metrics.Rejected++
		o.log.WithPayload(map[string]interface{}{"phase": name}).Warn("阶段正在运行，拒绝本次触发")
		return nil, fmt.Errorf("%w: %s", ErrPhaseRunning, name)
	}
	st.running = true
	return st, nil
}

func (o *Orchestrator) release(st *phaseState, rec models.AgentRunRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.running = false

	pm := o.metrics.Phases[rec.Agent]
	pm.Runs++
	pm.LastStatus = rec.Status
	pm.LastDurationMs = rec.DurationMs
	pm.LastRunAt = rec.Timestamp
	o.metrics.TotalRuns++
	if rec.Status == models.RunStatusSuccess {
		pm.Successes++
		o.metrics.Successful++
	} else {
		pm.Errors++
		o.metrics.Errors++
	}
	o.metrics.Phases[rec.Agent] = pm
	o.metrics.UpdatedAt = o.clock.Now().UTC()
}

// safeRun 执行阶段并把 panic 转换为 critical_error。
func safeRun(ctx context.Context, run PhaseFunc) (meta map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Critical(fmt.Errorf("phase panicked: %v", r))
		}
	}()
	return run(ctx)
}

// Metrics 返回计数器的副本。
func (o *Orchestrator) Metrics() models.RunnerMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metricsLocked()
}

func (o *Orchestrator) metricsLocked() models.RunnerMetrics {
	m := o.metrics
	m.Phases = make(map[string]models.PhaseMetrics, len(o.metrics.Phases))
	for k, v := range o.metrics.Phases {
		m.Phases[k] = v
	}
	return m
}

// Phases 返回按注册顺序排列的阶段状态。
func (o *Orchestrator) Phases() []PhaseStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PhaseStatus, 0, len(o.order))
	for _, name := range o.order {
		st := o.phases[name]
		ps := PhaseStatus{
			Name:    name,
			Enabled: st.phase.Enabled,
			Every:   st.phase.Every.String(),
			Running: st.running,
			Metrics: o.metrics.Phases[name],
		}
		if o.started && st.phase.Enabled {
			next := st.nextDue
			ps.NextDue = &next
		}
		out = append(out, ps)
	}
	return out
}

// Health 汇总调度器状态、各阶段状态和依赖检查结果。
func (o *Orchestrator) Health(ctx context.Context) models.SystemHealth {
	o.mu.Lock()
	h := models.SystemHealth{
		Status:    "stopped",
		Phases:    make(map[string]string, len(o.phases)),
		CheckedAt: o.clock.Now().UTC(),
	}
	if o.started {
		h.Status = "running"
	}
	for name, st := range o.phases {
		switch {
		case st.running:
			h.Phases[name] = "running"
		case !st.phase.Enabled:
			h.Phases[name] = "disabled"
		default:
			h.Phases[name] = "idle"
		}
	}
	o.mu.Unlock()

	if len(o.checks) > 0 {
		h.Dependencies = make(map[string]string, len(o.checks))
		names := make([]string, 0, len(o.checks))
		for name := range o.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := o.checks[name](ctx); err != nil {
				h.Dependencies[name] = "unhealthy: " + err.Error()
			} else {
				h.Dependencies[name] = "ok"
			}
		}
	}
	return h
}

func (o *Orchestrator) persistMetrics(ctx context.Context) {
	m := o.Metrics()
	if err := o.store.SetState(ctx, store.KeyRunnerMetrics, m); err != nil {
		o.log.WithError(models.NewErrorInfo(err)).Error("无法持久化调度指标")
	}
}

func (o *Orchestrator) persistHealth(ctx context.Context) {
	if err := o.store.SetState(ctx, store.KeySystemHealth, o.Health(ctx)); err != nil {
		o.log.WithError(models.NewErrorInfo(err)).Error("无法持久化健康状态")
	}
}
