package planning

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Optimizer 根据学习到的模式重排计划，并在条目之间插入缓冲时间。
type Optimizer struct {
	buffer            time.Duration
	efficiencyDefault float64
	topSlots          int
}

// NewOptimizer 从策略配置创建 Optimizer。
func NewOptimizer(policy config.PolicyConfig) *Optimizer {
	return &Optimizer{
		buffer:            policy.Buffer(),
		efficiencyDefault: policy.EfficiencyDefault,
		topSlots:          policy.TopProductiveSlots,
	}
}

// Optimize 依次执行高效时段分配、效率排序和缓冲插入。前两步仅在有学习数据时执行，
// 缓冲插入总是最后执行。不修改传入的计划。
func (o *Optimizer) Optimize(plan *models.PlanProposal, patterns *models.LearningPattern) *models.PlanProposal {
	out := plan.Clone()
	if patterns != nil && len(patterns.ProductiveSlots) > 0 {
		if desc, ok := o.assignProductiveSlots(out.Schedule, patterns.ProductiveSlots); ok {
			out.Optimizations = append(out.Optimizations, desc)
		}
	}
	if patterns != nil && len(patterns.TaskEfficiency) > 0 {
		out.Optimizations = append(out.Optimizations, o.sortByEfficiency(out.Schedule, patterns.TaskEfficiency))
	}
	out.Optimizations = append(out.Optimizations, o.insertBuffers(out.Schedule))
	return out
}

type slotStart struct {
	label        string
	hour, minute int
}

// assignProductiveSlots 按优先级权重稳定排序，再把高优先级条目轮流放入前几个高效时段。
func (o *Optimizer) assignProductiveSlots(schedule []models.ScheduleEntry, slots []models.ProductiveSlot) (string, bool) {
	ranked := append([]models.ProductiveSlot(nil), slots...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Weight > ranked[j].Weight })
	if o.topSlots > 0 && len(ranked) > o.topSlots {
		ranked = ranked[:o.topSlots]
	}
	var starts []slotStart
	for _, s := range ranked {
		if st, ok := parseSlot(s.Time); ok {
			starts = append(starts, st)
		}
	}
	if len(starts) == 0 {
		return "", false
	}

	sort.SliceStable(schedule, func(i, j int) bool {
		return schedule[i].Priority.Weight() > schedule[j].Priority.Weight()
	})

	moved := 0
	var labels []string
	for i := range schedule {
		if schedule[i].Priority != models.PriorityHigh {
			continue
		}
		slot := starts[moved%len(starts)]
		e := &schedule[i]
		d := e.Duration()
		y, m, day := e.Start.Date()
		e.Start = time.Date(y, m, day, slot.hour, slot.minute, 0, 0, e.Start.Location())
		e.End = e.Start.Add(d)
		labels = append(labels, fmt.Sprintf("%s→%s", EntryRef(*e), slot.label))
		moved++
	}
	if moved == 0 {
		return "Sorted entries by priority weight; no high-priority entries to place in productive slots", true
	}
	return fmt.Sprintf("Sorted entries by priority weight and placed %d high-priority entries in productive slots (%s)",
		moved, strings.Join(labels, ", ")), true
}

// sortByEfficiency 按任务标题的效率分降序稳定排序，未知任务使用默认分。
func (o *Optimizer) sortByEfficiency(schedule []models.ScheduleEntry, scores map[string]float64) string {
	score := func(e models.ScheduleEntry) float64 {
		if s, ok := scores[e.Title]; ok {
			return s
		}
		return o.efficiencyDefault
	}
	sort.SliceStable(schedule, func(i, j int) bool { return score(schedule[i]) > score(schedule[j]) })
	return fmt.Sprintf("Reordered %d entries by learned task efficiency", len(schedule))
}

// insertBuffers 保证相邻条目之间至少间隔 buffer，被推迟的条目保持原时长。
func (o *Optimizer) insertBuffers(schedule []models.ScheduleEntry) string {
	shifted := 0
	for i := 1; i < len(schedule); i++ {
		boundary := schedule[i-1].End.Add(o.buffer)
		cur := &schedule[i]
		if cur.Start.Before(boundary) {
			d := cur.Duration()
			cur.Start = boundary
			cur.End = boundary.Add(d)
			shifted++
		}
	}
	return fmt.Sprintf("Enforced %d-minute buffers between entries (%d shifted)", int(o.buffer/time.Minute), shifted)
}

// parseSlot 解析 "9:00-10:00" 形式的时段标签的开始时间。
func parseSlot(label string) (slotStart, bool) {
	var h1, m1, h2, m2 int
	if _, err := fmt.Sscanf(label, "%d:%d-%d:%d", &h1, &m1, &h2, &m2); err != nil {
		return slotStart{}, false
	}
	if h1 < 0 || h1 > 23 || m1 < 0 || m1 > 59 {
		return slotStart{}, false
	}
	return slotStart{label: label, hour: h1, minute: m1}, true
}
