package oracle

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

type fakeLLM struct {
	replies []string
	err     error
	calls   int
	last    *models.GenerateContentRequest
}

func (f *fakeLLM) GenerateContent(_ context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	reply := ""
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return &models.GenerateContentResponse{
		Content: []models.Content{{Parts: []*models.Part{{Text: reply}}, Role: models.SpeakerModel}},
	}, nil
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"plain":        {`{"a":1}`, `{"a":1}`, true},
		"fenced":       {"Sure!\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`, true},
		"prose":        {`The plan is {"a":{"b":"}"}} as requested.`, `{"a":{"b":"}"}}`, true},
		"skips broken": {`{oops} then {"a":2}`, `{"a":2}`, true},
		"none":         {"I cannot help with that.", "", false},
		"empty":        {"   ", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParsePlan_FencedReply(t *testing.T) {
	reply := "Here is your day:\n```json\n" +
		`{"schedule":[{"task_id":"t1","title":"Write report","start":"09:00","end":"10:30","priority":"High"}],` +
		`"conflicts":[{"type":"overlap","entries":["t1"],"time":"09:00"},{"type":"mood","entries":["t1"]}],` +
		`"recommendations":["Start early"]}` + "\n```"

	result := ParsePlan(reply, day, 8*time.Hour)
	require.True(t, result.OK())
	require.Len(t, result.Plan.Schedule, 1)

	entry := result.Plan.Schedule[0]
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), entry.Start)
	assert.Equal(t, 90*time.Minute, entry.Duration())
	assert.Equal(t, models.PriorityHigh, entry.Priority)

	require.Len(t, result.Plan.Conflicts, 1, "unknown conflict types are ignored")
	assert.Equal(t, "medium", result.Plan.Conflicts[0].Severity)
	require.NotNil(t, result.Plan.Conflicts[0].Time)
	assert.Equal(t, []string{"Start early"}, result.Plan.Recommendations)
}

func TestParsePlan_DropsInvalidEntries(t *testing.T) {
	reply := `{"schedule":[
		{"task_id":"ok","title":"ok","start":"2026-10-15T08:00","end":"2026-10-15T09:00","priority":"low"},
		{"task_id":"long","title":"long","start":"2026-10-15T08:00","end":"2026-10-15T16:01","priority":"Low"},
		{"task_id":"backwards","title":"backwards","start":"11:00","end":"10:00","priority":"Medium"}
	]}`
	result := ParsePlan(reply, day, 8*time.Hour)
	require.True(t, result.OK())
	require.Len(t, result.Plan.Schedule, 1)
	assert.Equal(t, "ok", result.Plan.Schedule[0].TaskID)
	assert.Equal(t, models.PriorityLow, result.Plan.Schedule[0].Priority)
	require.Len(t, result.Plan.Recommendations, 1)
	assert.Contains(t, result.Plan.Recommendations[0], "Discarded 2")
}

func TestParsePlan_Failures(t *testing.T) {
	assert.NotNil(t, ParsePlan("no json here", day, 0).Failure)
	assert.NotNil(t, ParsePlan(`{"recommendations":[]}`, day, 0).Failure)
	assert.NotNil(t, ParsePlan(`{"schedule":"soon"}`, day, 0).Failure)

	empty := ParsePlan(`{"schedule":[]}`, day, 0)
	require.True(t, empty.OK())
	assert.Empty(t, empty.Plan.Schedule)
}

func TestParseResolution(t *testing.T) {
	res, failure := ParseResolution(`{"action":"move_task","new_time":"14:00","confidence":0.85,"rationale":"free"}`, day)
	require.Nil(t, failure)
	assert.Equal(t, models.ActionMoveTask, res.Action)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Equal(t, time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC), *res.NewTime)

	_, failure = ParseResolution(`{"action":"move_task","confidence":0.9}`, day)
	assert.NotNil(t, failure, "move_task requires new_time")

	_, failure = ParseResolution(`{"action":"split_task","confidence":1.2}`, day)
	assert.NotNil(t, failure)

	_, failure = ParseResolution(`{"action":"teleport","confidence":0.9}`, day)
	assert.NotNil(t, failure)

	res, failure = ParseResolution(`{"action":"split_task","confidence":0}`, day)
	require.Nil(t, failure)
	assert.Nil(t, res.NewTime)
}

func TestLLMOracle_ProposePlan(t *testing.T) {
	model := &fakeLLM{replies: []string{`{"schedule":[{"task_id":"t1","title":"Read","start":"10:00","end":"11:00","priority":"Medium"}]}`}}
	o := NewLLMOracle(model)

	result := o.ProposePlan(context.Background(), PlanContext{Date: "2026-10-15", Day: day})
	require.True(t, result.OK())
	assert.Len(t, result.Plan.Schedule, 1)
	require.NotNil(t, model.last)
	assert.True(t, model.last.JSONMode)
}

func TestLLMOracle_FailuresAreValues(t *testing.T) {
	model := &fakeLLM{err: errors.New("connection refused")}
	o := NewLLMOracle(model)

	result := o.ProposePlan(context.Background(), PlanContext{Day: day})
	require.NotNil(t, result.Failure)
	assert.Contains(t, result.Failure.Reason, "oracle unavailable")
	assert.Nil(t, o.ResolveConflict(context.Background(), ConflictContext{Day: day}))
	assert.Nil(t, o.AnalyzePerformance(context.Background(), models.PerformanceRecord{}))

	garbled := NewLLMOracle(&fakeLLM{replies: []string{"sorry", "sorry"}})
	assert.Nil(t, garbled.ResolveConflict(context.Background(), ConflictContext{Day: day}))
	assert.Nil(t, garbled.AnalyzePerformance(context.Background(), models.PerformanceRecord{}))
}

func TestLLMOracle_BreakerStopsCalls(t *testing.T) {
	model := &fakeLLM{err: errors.New("503")}
	o := NewLLMOracle(model, WithBreaker(circuitbreaker.New(2, 1, time.Hour)))

	for i := 0; i < 3; i++ {
		o.ResolveConflict(context.Background(), ConflictContext{Day: day})
	}
	assert.Equal(t, 2, model.calls, "open circuit must short-circuit the third call")
}

func TestLLMOracle_AnalyzePerformance(t *testing.T) {
	model := &fakeLLM{replies: []string{`Analysis: {"summary":"solid day","recommendations":["", "keep mornings free"],"productivity_score":-3}`}}
	insights := NewLLMOracle(model).AnalyzePerformance(context.Background(), models.PerformanceRecord{Date: "2026-10-15"})
	require.NotNil(t, insights)
	assert.Equal(t, "solid day", insights.Summary)
	assert.Equal(t, []string{"keep mornings free"}, insights.Recommendations)
	assert.Equal(t, 0.0, insights.ProductivityScore)
}
