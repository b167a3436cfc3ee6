package adaptation

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tasks(p models.Priority, titles ...string) []models.TaskRecord {
	var out []models.TaskRecord
	for _, title := range titles {
		out = append(out, models.TaskRecord{ID: title, Title: title, Priority: p})
	}
	return out
}

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(store.NewMemoryKV(), store.NewMemoryJournal())
	return NewEngine(st, config.DefaultPolicy(), nil), st
}

func TestMergeSlots_Example(t *testing.T) {
	merged := MergeSlots(
		[]models.ProductiveSlot{{Time: "9:00-10:00", Weight: 2}},
		[]string{"9:00-10:00", "14:00-15:00"},
		5,
	)
	assert.Equal(t, []models.ProductiveSlot{
		{Time: "9:00-10:00", Weight: 3},
		{Time: "14:00-15:00", Weight: 1},
	}, merged)
}

func TestMergeSlots_TruncatesToTop(t *testing.T) {
	existing := []models.ProductiveSlot{
		{Time: "8:00-9:00", Weight: 4}, {Time: "9:00-10:00", Weight: 1}, {Time: "10:00-11:00", Weight: 1},
	}
	merged := MergeSlots(existing, []string{"10:00-11:00", "15:00-16:00"}, 2)
	assert.Equal(t, []models.ProductiveSlot{{Time: "8:00-9:00", Weight: 4}, {Time: "10:00-11:00", Weight: 2}}, merged)
}

func TestAdapt_BlendsCompletionRate(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	require.NoError(t, st.SaveLearningData(ctx, store.KeyTaskPatterns, models.LearningPattern{
		CompletionRate: map[models.Priority]float64{models.PriorityHigh: 0.5},
	}))

	update, err := e.Adapt(ctx, models.PerformanceRecord{Completed: tasks(models.PriorityHigh, "a", "b")}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, update.Patterns.CompletionRate[models.PriorityHigh], 1e-9)

	_, hasLow := update.Patterns.CompletionRate[models.PriorityLow]
	assert.False(t, hasLow, "priorities absent from the period are left alone")
}

func TestAdapt_FirstRateIsAdoptedAndBlendHasFixedPoint(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	perf := models.PerformanceRecord{
		Completed: tasks(models.PriorityMedium, "a", "b", "c"),
		Missed:    tasks(models.PriorityMedium, "d"),
	}

	first, err := e.Adapt(ctx, perf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.75, first.Patterns.CompletionRate[models.PriorityMedium])

	second, err := e.Adapt(ctx, perf, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, second.Patterns.CompletionRate[models.PriorityMedium], 1e-9)
}

func TestAdapt_MiddleRateLeavesMaxDailyTasks(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	require.NoError(t, st.SaveLearningData(ctx, store.KeyUserPreferences, models.UserPreferences{MaxDailyTasks: 8}))

	perf := models.PerformanceRecord{
		Completed: tasks(models.PriorityLow, "1", "2", "3", "4", "5", "6"),
		Missed:    tasks(models.PriorityLow, "7", "8"),
	}
	update, err := e.Adapt(ctx, perf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.75, update.CompletionRate)
	assert.Equal(t, 8, update.Preferences.MaxDailyTasks)
	assert.Empty(t, update.Adjustments)
}

func TestAdapt_MaxDailyTasksStaysInBounds(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	bad := models.PerformanceRecord{Missed: tasks(models.PriorityHigh, "x")}
	good := models.PerformanceRecord{Completed: tasks(models.PriorityHigh, "y")}

	var last int
	for i := 0; i < 10; i++ {
		update, err := e.Adapt(ctx, bad, nil)
		require.NoError(t, err)
		last = update.Preferences.MaxDailyTasks
		assert.GreaterOrEqual(t, last, 3)
		assert.LessOrEqual(t, last, 12)
	}
	assert.Equal(t, 3, last)

	for i := 0; i < 15; i++ {
		update, err := e.Adapt(ctx, good, nil)
		require.NoError(t, err)
		last = update.Preferences.MaxDailyTasks
		assert.GreaterOrEqual(t, last, 3)
		assert.LessOrEqual(t, last, 12)
	}
	assert.Equal(t, 12, last)
}

func TestAdapt_UnsetMaxDailyTasksStartsFromDefault(t *testing.T) {
	e, _ := newEngine(t)
	update, err := e.Adapt(context.Background(), models.PerformanceRecord{Completed: tasks(models.PriorityHigh, "y")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, update.Preferences.MaxDailyTasks)
	require.Len(t, update.Adjustments, 1)
}

func TestAdapt_UnsetMaxDailyTasksStaysUnsetOnMiddleRate(t *testing.T) {
	e, _ := newEngine(t)
	perf := models.PerformanceRecord{
		Completed: tasks(models.PriorityLow, "1", "2", "3", "4"),
		Missed:    tasks(models.PriorityLow, "5"),
	}
	update, err := e.Adapt(context.Background(), perf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, update.CompletionRate)
	assert.Zero(t, update.Preferences.MaxDailyTasks)
	assert.Empty(t, update.Adjustments)
}

func TestAdapt_StoredMaxDailyTasksIsClamped(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	require.NoError(t, st.SaveLearningData(ctx, store.KeyUserPreferences, models.UserPreferences{MaxDailyTasks: 20}))

	update, err := e.Adapt(ctx, models.PerformanceRecord{Date: "2026-10-14"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, update.Preferences.MaxDailyTasks)

	var prefs models.UserPreferences
	found, err := st.GetLearningData(ctx, store.KeyUserPreferences, &prefs)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 12, prefs.MaxDailyTasks)
}

func TestAdapt_EffectivenessAndEfficiency(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	perf := models.PerformanceRecord{
		Completed: tasks(models.PriorityHigh, "write", "write"),
		Missed:    tasks(models.PriorityLow, "gym"),
	}
	update, err := e.Adapt(ctx, perf, nil)
	require.NoError(t, err)

	stat := update.Patterns.Effectiveness[models.PriorityHigh]
	assert.Equal(t, 2, stat.Count)
	assert.InDelta(t, 1.0, stat.Ratio, 1e-9)
	assert.InDelta(t, 0.7, update.Patterns.TaskEfficiency["write"], 1e-9)
	assert.InDelta(t, 0.45, update.Patterns.TaskEfficiency["gym"], 1e-9)
}

func TestAdapt_RefreshesPreferencesAndPersists(t *testing.T) {
	e, st := newEngine(t)
	now := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })
	ctx := context.Background()

	perf := models.PerformanceRecord{
		Completed: tasks(models.PriorityMedium, "a"),
		Usage:     models.UsageStats{AverageDurationMinutes: 42.6, PeakHours: []int{9, 14}},
	}
	insights := &models.Insights{Summary: "good", ProductivityScore: 0.8}
	update, err := e.Adapt(ctx, perf, insights)
	require.NoError(t, err)
	assert.Equal(t, 43, update.Preferences.PreferredTaskDuration)
	assert.Equal(t, []string{"9:00-10:00", "14:00-15:00"}, update.Preferences.PeakProductivityHours)
	assert.Equal(t, now, update.Patterns.UpdatedAt)

	var stored models.Insights
	found, err := st.GetLearningData(ctx, store.KeyPerformanceInsights, &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "good", stored.Summary)

	var patterns models.LearningPattern
	found, err = st.GetLearningData(ctx, store.KeyTaskPatterns, &patterns)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, patterns.ProductiveSlots, 2)
}
