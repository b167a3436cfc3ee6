package planning

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/oracle"
	"context"
	"sync"
	"time"
)

var (
	testDay = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	testNow = testDay.Add(7 * time.Hour)
)

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func entry(id string, p models.Priority, start time.Time, d time.Duration) models.ScheduleEntry {
	return models.ScheduleEntry{TaskID: id, Title: id, Priority: p, Start: start, End: start.Add(d)}
}

// fakeOracle 按调用顺序返回预设结果。
type fakeOracle struct {
	mu          sync.Mutex
	plan        oracle.PlanResult
	resolutions []*models.Resolution
	insights    *models.Insights
	planCtx     *oracle.PlanContext
	conflicts   []oracle.ConflictContext
}

func (f *fakeOracle) ProposePlan(_ context.Context, pc oracle.PlanContext) oracle.PlanResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCtx = &pc
	return f.plan
}

func (f *fakeOracle) ResolveConflict(_ context.Context, cc oracle.ConflictContext) *models.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts = append(f.conflicts, cc)
	if len(f.resolutions) == 0 {
		return nil
	}
	r := f.resolutions[0]
	f.resolutions = f.resolutions[1:]
	return r
}

func (f *fakeOracle) AnalyzePerformance(context.Context, models.PerformanceRecord) *models.Insights {
	return f.insights
}
