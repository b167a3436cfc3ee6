package models

import "time"

// ProductiveSlot 是一个带权重的高效时间段，例如 "9:00-10:00"
type ProductiveSlot struct {
	Time   string `json:"time"`
	Weight int    `json:"weight"`
}

// PriorityStat 是某个优先级的累计完成统计
type PriorityStat struct {
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// LearningPattern 聚合了历史行为信号，由自适应引擎增量更新
type LearningPattern struct {
	ProductiveSlots []ProductiveSlot          `json:"productive_slots"`
	CompletionRate  map[Priority]float64      `json:"completion_rate"`
	Effectiveness   map[Priority]PriorityStat `json:"effectiveness"`
	TaskEfficiency  map[string]float64        `json:"task_efficiency"` // 按任务标题学习的效率分
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// EnsureMaps 为空的映射分配内存，便于就地更新。
func (p *LearningPattern) EnsureMaps() {
	if p.CompletionRate == nil {
		p.CompletionRate = make(map[Priority]float64)
	}
	if p.Effectiveness == nil {
		p.Effectiveness = make(map[Priority]PriorityStat)
	}
	if p.TaskEfficiency == nil {
		p.TaskEfficiency = make(map[string]float64)
	}
}

// WorkingHours 定义每日工作时间，格式 HH:MM
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// UserPreferences 是可自适应调整的用户配置
type UserPreferences struct {
	WorkingHours          WorkingHours         `json:"working_hours"`
	PreferredTaskDuration int                  `json:"preferred_task_duration"` // 分钟
	MaxDailyTasks         int                  `json:"max_daily_tasks"`
	PriorityWeights       map[Priority]float64 `json:"priority_weights,omitempty"`
	PeakProductivityHours []string             `json:"peak_productivity_hours,omitempty"`
}

// UsageStats 是从完成任务中推导出的时间使用统计
type UsageStats struct {
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	PeakHours              []int   `json:"peak_hours"` // 按完成次数降序的前三个小时
}

// PerformanceRecord 是一天的执行结果
type PerformanceRecord struct {
	Date      string       `json:"date"`
	Completed []TaskRecord `json:"completed"`
	Missed    []TaskRecord `json:"missed"`
	Usage     UsageStats   `json:"usage"`
}

// CompletionRate 返回该周期的整体完成率；没有任务时 ok 为 false。
func (r PerformanceRecord) CompletionRate() (rate float64, ok bool) {
	total := len(r.Completed) + len(r.Missed)
	if total == 0 {
		return 0, false
	}
	return float64(len(r.Completed)) / float64(total), true
}

// Insights 是 AI 对表现的结构化分析
type Insights struct {
	Summary           string   `json:"summary"`
	Recommendations   []string `json:"recommendations"`
	ProductivityScore float64  `json:"productivity_score"`
}

// LearningUpdate 是一次自适应更新的结果
type LearningUpdate struct {
	Patterns       LearningPattern `json:"patterns"`
	Preferences    UserPreferences `json:"preferences"`
	CompletionRate float64         `json:"completion_rate"`
	Adjustments    []string        `json:"adjustments,omitempty"`
	Insights       *Insights       `json:"insights,omitempty"`
}

// ReviewReport 是复盘阶段写入 latest_review 的内容
type ReviewReport struct {
	Performance PerformanceRecord `json:"performance"`
	Update      *LearningUpdate   `json:"update"`
	ReviewedAt  time.Time         `json:"reviewed_at"`
}
