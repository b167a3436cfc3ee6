package adaptation

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// LearningData 是自适应引擎用到的存储子集。
type LearningData interface {
	GetLearningData(ctx context.Context, key string, out interface{}) (bool, error)
	SaveLearningData(ctx context.Context, key string, value interface{}) error
}

// Engine 根据一天的执行结果更新学习到的模式和用户偏好。
type Engine struct {
	store  LearningData
	policy config.PolicyConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewEngine 创建一个 Engine。
func NewEngine(st LearningData, policy config.PolicyConfig, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{store: st, policy: policy, log: log, now: time.Now}
}

// SetClock 替换时间来源。
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Adapt 读取现有的模式和偏好，合并本期数据后整体写回。
// 读改写不是原子的，依赖调度器保证同一时间只有一个复盘在运行。
func (e *Engine) Adapt(ctx context.Context, perf models.PerformanceRecord, insights *models.Insights) (*models.LearningUpdate, error) {
	var patterns models.LearningPattern
	if _, err := e.store.GetLearningData(ctx, store.KeyTaskPatterns, &patterns); err != nil {
		return nil, err
	}
	var prefs models.UserPreferences
	if _, err := e.store.GetLearningData(ctx, store.KeyUserPreferences, &prefs); err != nil {
		return nil, err
	}
	patterns.EnsureMaps()
	if prefs.MaxDailyTasks != 0 {
		prefs.MaxDailyTasks = e.clampDailyTasks(prefs.MaxDailyTasks)
	}

	update := &models.LearningUpdate{Insights: insights}
	patterns.ProductiveSlots = MergeSlots(patterns.ProductiveSlots, SlotLabels(perf.Usage.PeakHours), e.policy.TopProductiveSlots)
	e.updateCompletionRates(&patterns, perf)
	updateEffectiveness(&patterns, perf.Completed)
	e.updateTaskEfficiency(&patterns, perf)
	patterns.UpdatedAt = e.now().UTC()

	rate, ok := perf.CompletionRate()
	if ok {
		update.CompletionRate = rate
		if adj := e.adjustDailyTasks(&prefs, rate); adj != "" {
			update.Adjustments = append(update.Adjustments, adj)
		}
	}
	if avg := perf.Usage.AverageDurationMinutes; avg > 0 {
		prefs.PreferredTaskDuration = int(math.Round(avg))
	}
	if labels := SlotLabels(perf.Usage.PeakHours); len(labels) > 0 {
		prefs.PeakProductivityHours = labels
	}

	if err := e.store.SaveLearningData(ctx, store.KeyTaskPatterns, patterns); err != nil {
		return nil, err
	}
	if err := e.store.SaveLearningData(ctx, store.KeyUserPreferences, prefs); err != nil {
		return nil, err
	}
	if insights != nil {
		if err := e.store.SaveLearningData(ctx, store.KeyPerformanceInsights, insights); err != nil {
			return nil, err
		}
	}

	update.Patterns = patterns
	update.Preferences = prefs
	e.log.WithPayload(map[string]interface{}{
		"date":            perf.Date,
		"completion_rate": update.CompletionRate,
		"max_daily_tasks": prefs.MaxDailyTasks,
		"slots":           len(patterns.ProductiveSlots),
	}).Info("学习数据已更新")
	return update, nil
}

// MergeSlots 按时段标签合并：已有时段保留权重，本期再次出现的加一，新时段权重为一。
// 结果按权重降序稳定排序，并截断到前 top 个。
func MergeSlots(existing []models.ProductiveSlot, observed []string, top int) []models.ProductiveSlot {
	merged := append([]models.ProductiveSlot(nil), existing...)
	index := make(map[string]int, len(merged))
	for i, s := range merged {
		index[s.Time] = i
	}
	for _, label := range observed {
		if i, ok := index[label]; ok {
			merged[i].Weight++
			continue
		}
		index[label] = len(merged)
		merged = append(merged, models.ProductiveSlot{Time: label, Weight: 1})
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Weight > merged[j].Weight })
	if top > 0 && len(merged) > top {
		merged = merged[:top]
	}
	return merged
}

// SlotLabels 把整点转换为 "9:00-10:00" 形式的时段标签。
func SlotLabels(hours []int) []string {
	labels := make([]string, 0, len(hours))
	for _, h := range hours {
		labels = append(labels, fmt.Sprintf("%d:00-%d:00", h, h+1))
	}
	return labels
}

// Blend 按权重混合历史值和新值。
func Blend(previous, current, wPrev, wNew float64) float64 {
	return wPrev*previous + wNew*current
}

func (e *Engine) updateCompletionRates(p *models.LearningPattern, perf models.PerformanceRecord) {
	completed := countByPriority(perf.Completed)
	missed := countByPriority(perf.Missed)
	for _, pr := range models.Priorities {
		total := completed[pr] + missed[pr]
		if total == 0 {
			continue
		}
		rate := float64(completed[pr]) / float64(total)
		if prev, ok := p.CompletionRate[pr]; ok {
			rate = Blend(prev, rate, e.policy.BlendPrevious, e.policy.BlendNew)
		}
		p.CompletionRate[pr] = clamp01(rate)
	}
}

// updateEffectiveness 只在任务完成时更新，比例随完成次数增加趋向 1。
func updateEffectiveness(p *models.LearningPattern, completed []models.TaskRecord) {
	for _, t := range completed {
		stat := p.Effectiveness[t.Priority]
		stat.Count++
		stat.Ratio = (stat.Ratio*float64(stat.Count-1) + 1) / float64(stat.Count)
		p.Effectiveness[t.Priority] = stat
	}
}

func (e *Engine) updateTaskEfficiency(p *models.LearningPattern, perf models.PerformanceRecord) {
	score := func(title string) float64 {
		if s, ok := p.TaskEfficiency[title]; ok {
			return s
		}
		return e.policy.EfficiencyDefault
	}
	for _, t := range perf.Completed {
		if t.Title != "" {
			p.TaskEfficiency[t.Title] = math.Min(1, score(t.Title)+e.policy.EfficiencyBoost)
		}
	}
	for _, t := range perf.Missed {
		if t.Title != "" {
			p.TaskEfficiency[t.Title] = math.Max(0, score(t.Title)-e.policy.EfficiencyPenalty)
		}
	}
}

// adjustDailyTasks 根据完成率把每日任务上限加减一，结果始终在 [min, max] 内。
// 完成率处于中间区间时保持原值，未设置的上限也不会被写入默认值。
func (e *Engine) adjustDailyTasks(prefs *models.UserPreferences, rate float64) string {
	before := prefs.MaxDailyTasks
	base := before
	if base == 0 {
		base = e.policy.DefaultDailyTasks
	}
	var next int
	switch {
	case rate < e.policy.LowCompletionRate:
		next = e.clampDailyTasks(base - 1)
	case rate > e.policy.HighCompletionRate:
		next = e.clampDailyTasks(base + 1)
	default:
		return ""
	}
	if next == before {
		return ""
	}
	prefs.MaxDailyTasks = next
	return fmt.Sprintf("max_daily_tasks %d -> %d (completion rate %.2f)", before, next, rate)
}

func (e *Engine) clampDailyTasks(n int) int {
	if n < e.policy.MinDailyTasks {
		return e.policy.MinDailyTasks
	}
	if n > e.policy.MaxDailyTasks {
		return e.policy.MaxDailyTasks
	}
	return n
}

func countByPriority(tasks []models.TaskRecord) map[models.Priority]int {
	counts := make(map[models.Priority]int)
	for _, t := range tasks {
		counts[t.Priority]++
	}
	return counts
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
