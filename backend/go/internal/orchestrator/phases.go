package orchestrator

import (
	"DayPilot/backend/go/internal/adaptation"
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/executor"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/oracle"
	"DayPilot/backend/go/internal/store"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"
)

// 阶段名
const (
	PhaseCollector    = "collector"
	PhasePlanner      = "planner"
	PhaseExecutor     = "executor"
	PhaseReviewer     = "reviewer"
	PhaseFullWorkflow = "fullWorkflow"
)

// Collector 采集并提供最新快照。
type Collector interface {
	Collect(ctx context.Context) (*models.Snapshot, error)
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// Planner 生成初始计划。
type Planner interface {
	BuildPlan(ctx context.Context, snap *models.Snapshot, prefs *models.UserPreferences, patterns *models.LearningPattern) (*models.PlanProposal, error)
}

// ConflictResolver 处理计划中的冲突。
type ConflictResolver interface {
	ResolveConflicts(ctx context.Context, proposal *models.PlanProposal, snap *models.Snapshot) (*models.PlanProposal, error)
}

// PlanOptimizer 优化已解决冲突的计划。
type PlanOptimizer interface {
	Optimize(plan *models.PlanProposal, patterns *models.LearningPattern) *models.PlanProposal
}

// Adapter 根据表现更新学习数据。
type Adapter interface {
	Adapt(ctx context.Context, perf models.PerformanceRecord, insights *models.Insights) (*models.LearningUpdate, error)
}

// Pipeline 汇集各阶段用到的组件。
type Pipeline struct {
	Collector     Collector
	Store         store.LearningStore
	Planner       Planner
	Resolver      ConflictResolver
	Optimizer     PlanOptimizer
	Executor      executor.Executor
	Adapter       Adapter
	Oracle        oracle.Oracle
	PlanFreshness time.Duration
	SettleDelay   time.Duration
	Location      *time.Location
	Log           *logger.Logger
	Now           func() time.Time
}

// RegisterPipeline 按调度配置把五个阶段注册到 o。
func RegisterPipeline(o *Orchestrator, cfg config.SchedulerConfig, p *Pipeline) error {
	if p.Location == nil {
		p.Location = time.Local
	}
	if p.Log == nil {
		p.Log = logger.Discard()
	}
	if p.Now == nil {
		p.Now = o.Now
	}
	settle, err := config.ParseDuration(cfg.SettleDelay, 5*time.Second)
	if err != nil {
		return err
	}
	p.SettleDelay = settle

	runs := map[string]PhaseFunc{
		PhaseCollector: p.collect,
		PhasePlanner:   p.plan,
		PhaseExecutor:  p.execute,
		PhaseReviewer:  p.review,
		PhaseFullWorkflow: func(ctx context.Context) (map[string]interface{}, error) {
			return p.fullWorkflow(ctx, o)
		},
	}
	for _, name := range []string{PhaseCollector, PhasePlanner, PhaseExecutor, PhaseReviewer, PhaseFullWorkflow} {
		pc := cfg.Phases[name]
		every, err := config.ParseDuration(pc.Every, 0)
		if err != nil {
			return fmt.Errorf("phase %s: %w", name, err)
		}
		if err := o.Register(Phase{Name: name, Every: every, Enabled: pc.Enabled, Exclusive: true, Run: runs[name]}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) collect(ctx context.Context) (map[string]interface{}, error) {
	snap, err := p.Collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"tasks":   len(snap.Tasks),
		"events":  len(snap.Events),
		"weather": snap.Weather != nil,
	}, nil
}

func (p *Pipeline) plan(ctx context.Context) (map[string]interface{}, error) {
	snap, err := p.Collector.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	var prefs models.UserPreferences
	prefsFound, err := p.Store.GetLearningData(ctx, store.KeyUserPreferences, &prefs)
	if err != nil {
		return nil, err
	}
	var patterns models.LearningPattern
	patternsFound, err := p.Store.GetLearningData(ctx, store.KeyTaskPatterns, &patterns)
	if err != nil {
		return nil, err
	}
	var prefsArg *models.UserPreferences
	if prefsFound {
		prefsArg = &prefs
	}
	var patternsArg *models.LearningPattern
	if patternsFound {
		patternsArg = &patterns
	}

	proposal, err := p.Planner.BuildPlan(ctx, snap, prefsArg, patternsArg)
	if err != nil {
		return nil, err
	}
	resolved, err := p.Resolver.ResolveConflicts(ctx, proposal, snap)
	if err != nil {
		return nil, err
	}
	final := p.Optimizer.Optimize(resolved, patternsArg)

	if err := p.Store.SetState(ctx, store.KeyLatestPlan, final); err != nil {
		return nil, err
	}
	if final.Date != "" {
		if err := p.Store.SetState(ctx, store.PlanKey(final.Date), final); err != nil {
			return nil, err
		}
	}
	if err := p.Store.SetState(ctx, store.KeyLastPlanningTime, final.GeneratedAt); err != nil {
		return nil, err
	}

	applied := 0
	for _, r := range final.Resolutions {
		if r.Applied {
			applied++
		}
	}
	return map[string]interface{}{
		"date":          final.Date,
		"entries":       len(final.Schedule),
		"conflicts":     len(final.Conflicts),
		"resolved":      applied,
		"optimizations": len(final.Optimizations),
		"parse_failed":  final.ParseFailed,
	}, nil
}

func (p *Pipeline) execute(ctx context.Context) (map[string]interface{}, error) {
	var planned time.Time
	found, err := p.Store.GetState(ctx, store.KeyLastPlanningTime, &planned)
	if err != nil {
		return nil, err
	}
	if !found || !models.IsFresh(planned, p.Now(), p.PlanFreshness) {
		return nil, fmt.Errorf("%w: no plan within %s", models.ErrDataUnavailable, p.PlanFreshness)
	}
	var plan models.PlanProposal
	found, err = p.Store.GetState(ctx, store.KeyLatestPlan, &plan)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: latest plan missing", models.ErrDataUnavailable)
	}

	report, execErr := p.Executor.Execute(ctx, &plan)
	if report != nil {
		if err := p.Store.SetState(ctx, store.KeyLatestExecution, report); err != nil {
			return nil, err
		}
	}
	if execErr != nil {
		return nil, execErr
	}
	if report == nil {
		report = &models.ExecutionReport{}
	}
	return map[string]interface{}{
		"date":             plan.Date,
		"calendar_updates": len(report.CalendarUpdates),
		"notion_updates":   len(report.NotionUpdates),
		"notifications":    len(report.Notifications),
		"errors":           len(report.Errors),
	}, nil
}

func (p *Pipeline) review(ctx context.Context) (map[string]interface{}, error) {
	snap, err := p.Collector.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	today := p.Now().In(p.Location)
	day := time.Date(today.Year(), today.Month(), today.Day()-1, 0, 0, 0, 0, p.Location)

	var plan models.PlanProposal
	found, err := p.Store.GetState(ctx, store.PlanKey(day.Format("2006-01-02")), &plan)
	if err != nil {
		return nil, err
	}
	var planArg *models.PlanProposal
	if found {
		planArg = &plan
	}

	perf := adaptation.BuildPerformanceRecord(snap, planArg, day)
	insights := p.Oracle.AnalyzePerformance(ctx, perf)
	update, err := p.Adapter.Adapt(ctx, perf, insights)
	if err != nil {
		return nil, err
	}
	report := models.ReviewReport{Performance: perf, Update: update, ReviewedAt: p.Now().UTC()}
	if err := p.Store.SetState(ctx, store.KeyLatestReview, report); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"date":            perf.Date,
		"completed":       len(perf.Completed),
		"missed":          len(perf.Missed),
		"completion_rate": update.CompletionRate,
		"insights":        insights != nil,
	}, nil
}

// fullWorkflow 依次运行采集、规划和执行。采集或规划失败会中止工作流，执行失败只记录警告。
func (p *Pipeline) fullWorkflow(ctx context.Context, o *Orchestrator) (map[string]interface{}, error) {
	meta := map[string]interface{}{}

	if err := runStep(ctx, o, PhaseCollector); err != nil {
		return meta, Critical(err)
	}
	meta[PhaseCollector] = models.RunStatusSuccess

	select {
	case <-o.After(p.SettleDelay):
	case <-ctx.Done():
		return meta, Critical(fmt.Errorf("workflow cancelled while settling: %w", ctx.Err()))
	}

	if err := runStep(ctx, o, PhasePlanner); err != nil {
		return meta, Critical(err)
	}
	meta[PhasePlanner] = models.RunStatusSuccess

	if err := runStep(ctx, o, PhaseExecutor); err != nil {
		meta[PhaseExecutor] = models.RunStatusError
		meta["warning"] = err.Error()
		p.Log.WithPayload(map[string]interface{}{"phase": PhaseExecutor, "reason": err.Error()}).Warn("执行阶段失败，工作流继续")
		return meta, nil
	}
	meta[PhaseExecutor] = models.RunStatusSuccess
	return meta, nil
}

func runStep(ctx context.Context, o *Orchestrator, name string) error {
	rec, err := o.RunPhase(ctx, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if rec.Status != models.RunStatusSuccess {
		return fmt.Errorf("%s: %s", name, rec.Error)
	}
	return nil
}
