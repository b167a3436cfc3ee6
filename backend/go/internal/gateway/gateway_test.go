package gateway

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	pkghttp "DayPilot/backend/go/pkg/http"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	tasks   []models.TaskRecord
	events  []models.CalendarEvent
	weather *models.WeatherSnapshot
	err     error
	wErr    error
}

func (s staticSource) FetchTasks(context.Context) ([]models.TaskRecord, error) {
	return s.tasks, s.err
}

func (s staticSource) FetchEvents(context.Context) ([]models.CalendarEvent, error) {
	return s.events, nil
}

func (s staticSource) FetchWeather(context.Context) (*models.WeatherSnapshot, error) {
	return s.weather, s.wErr
}

func newStore() *store.Store {
	return store.New(store.NewMemoryKV(), store.NewMemoryJournal())
}

func TestCollect_MergesSourcesAndDropsInvalidRecords(t *testing.T) {
	start := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	src := staticSource{
		tasks: []models.TaskRecord{
			{ID: "t1", Title: "Write", Priority: models.PriorityHigh},
			{ID: "t2", Title: "Bad", Priority: "Urgent"},
		},
		events: []models.CalendarEvent{
			{ID: "e1", Start: start, End: start.Add(time.Hour)},
			{ID: "e2", Start: start, End: start},
		},
		weather: &models.WeatherSnapshot{Condition: "rain"},
	}
	st := newStore()
	g := New(src, src, src, st, nil)

	snap, err := g.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Tasks, 1)
	assert.Len(t, snap.Events, 1)
	require.NotNil(t, snap.Weather)

	latest, err := g.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", latest.Tasks[0].ID)
}

func TestCollect_WeatherFailureIsSoft(t *testing.T) {
	src := staticSource{wErr: errors.New("weather api down")}
	snap, err := New(src, src, src, newStore(), nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Weather)
}

func TestCollect_TaskFailureIsFatal(t *testing.T) {
	src := staticSource{err: errors.New("tracker down")}
	st := newStore()
	_, err := New(src, src, nil, st, nil).Collect(context.Background())
	require.Error(t, err)

	_, err = New(src, src, nil, st, nil).LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestIsFresh_Boundary(t *testing.T) {
	collectedAt := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	now := collectedAt
	g := New(staticSource{}, staticSource{}, nil, newStore(), nil)
	g.SetClock(func() time.Time { return now })
	_, err := g.Collect(context.Background())
	require.NoError(t, err)

	now = collectedAt.Add(119 * time.Minute)
	fresh, err := g.IsFresh(context.Background(), 120*time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	now = collectedAt.Add(120 * time.Minute)
	fresh, err = g.IsFresh(context.Background(), 120*time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh, "a snapshot exactly at the window edge is stale")
}

func TestHTTPSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]models.TaskRecord{{ID: "t1", Priority: models.PriorityLow}})
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.CalendarEvent{})
	})
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{}, time.Second)
	require.NoError(t, err)
	src := NewHTTPSource(client, config.SourceConfig{
		TasksURL:    server.URL + "/tasks",
		CalendarURL: server.URL + "/events",
		WeatherURL:  server.URL + "/weather",
		Token:       "secret",
	})

	tasks, err := src.FetchTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	events, err := src.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = src.FetchWeather(context.Background())
	assert.Error(t, err)

	snap, err := New(src, src, src, newStore(), nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Weather)
}
