package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/session"
	"strategy-builder-go/internal/validation"
	"strategy-builder-go/internal/versions"
)

const (
	strategyID = "7b0e2a8c-5c55-4a3e-9d2c-1b0b7e2c9f10"
	versionID  = "0f3c5a51-7d0e-4c1f-8f6a-2b9d4e6a1c22"
)

// MockAPI is a mock implementation of the versions.API interface.
type MockAPI struct {
	mock.Mock
}

var _ versions.API = (*MockAPI)(nil)

func (m *MockAPI) ListVersions(ctx context.Context, strategyID string) ([]models.StrategyVersionSummary, error) {
	args := m.Called(strategyID)
	list, _ := args.Get(0).([]models.StrategyVersionSummary)
	return list, args.Error(1)
}

func (m *MockAPI) CreateVersion(ctx context.Context, strategyID string, req versions.CreateVersionRequest) (*models.StrategyVersionSummary, error) {
	args := m.Called(strategyID, req)
	v, _ := args.Get(0).(*models.StrategyVersionSummary)
	return v, args.Error(1)
}

func (m *MockAPI) ValidateGraph(ctx context.Context, strategyID string, graph models.StrategyGraph) ([]models.CanvasValidationIssue, error) {
	args := m.Called(strategyID, graph)
	issues, _ := args.Get(0).([]models.CanvasValidationIssue)
	return issues, args.Error(1)
}

func (m *MockAPI) RevertVersion(ctx context.Context, strategyID, versionID string) (*models.StrategyVersionSummary, error) {
	args := m.Called(strategyID, versionID)
	v, _ := args.Get(0).(*models.StrategyVersionSummary)
	return v, args.Error(1)
}

const (
	debounce = 30 * time.Millisecond
	waitFor  = time.Second
	tick     = 5 * time.Millisecond
)

// setupTest creates a store with one loaded version and a coordinator with
// short timers.
func setupTest(t *testing.T) (*canvas.Store, *MockAPI, *Coordinator) {
	store := canvas.NewStore()
	api := new(MockAPI)
	c := New(store, api, zap.NewNop(), Options{
		Debounce:       debounce,
		NoticeDuration: 50 * time.Millisecond,
		StaleTime:      time.Minute,
	})
	t.Cleanup(c.Close)

	store.LoadVersion(canvas.LoadParams{StrategyID: strategyID, VersionID: versionID, Graph: models.EmptyGraph()})
	return store, api, c
}

func node(id string) models.StrategyNode {
	return models.StrategyNode{ID: id, Label: id, Type: "sma"}
}

func issue(code string) models.CanvasValidationIssue {
	return models.CanvasValidationIssue{Code: code, Message: code, Severity: models.SeverityWarning}
}

func summary(id string, version int, issues ...models.CanvasValidationIssue) *models.StrategyVersionSummary {
	if issues == nil {
		issues = []models.CanvasValidationIssue{}
	}
	return &models.StrategyVersionSummary{
		ID:               id,
		Version:          version,
		Label:            fmt.Sprintf("Auto Save v%d", version),
		Graph:            models.EmptyGraph(),
		ValidationIssues: issues,
		CreatedAt:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAutosave_AfterQuietPeriod(t *testing.T) {
	store, api, _ := setupTest(t)
	requests := make(chan versions.CreateVersionRequest, 4)
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2, issue("server")), nil).Run(func(args mock.Arguments) {
		requests <- args.Get(1).(versions.CreateVersionRequest)
	})

	store.UpsertNode(versionID, node("a"))
	store.UpsertNode(versionID, node("b"))
	store.UpsertNode(versionID, node("c"))

	assert.Eventually(t, func() bool { return !store.Dirty(versionID) }, waitFor, tick)
	state := store.Validation(versionID)
	assert.Equal(t, validation.StatusIdle, state.Status())
	assert.Equal(t, []models.CanvasValidationIssue{issue("server")}, state.Issues())

	req := <-requests
	assert.Len(t, req.Graph.Nodes, 3)
	assert.NotNil(t, req.EducatorCallouts)

	time.Sleep(3 * debounce)
	api.AssertNumberOfCalls(t, "CreateVersion", 1)
}

func TestAutosave_EditRestartsQuietPeriod(t *testing.T) {
	store, api, _ := setupTest(t)
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2), nil)

	start := time.Now()
	for i := 0; i < 4; i++ {
		store.UpsertNode(versionID, node(fmt.Sprintf("n%d", i)))
		time.Sleep(debounce / 2)
	}

	assert.Eventually(t, func() bool { return !store.Dirty(versionID) }, waitFor, tick)
	assert.GreaterOrEqual(t, time.Since(start), 2*debounce)
}

func TestAutosave_ServerIssuesReplaceClientRun(t *testing.T) {
	store, api, _ := setupTest(t)
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2), nil).Once()

	store.UpsertNode(versionID, node("a"))
	store.SetValidationResult(versionID, []models.CanvasValidationIssue{issue("client")})

	assert.Eventually(t, func() bool { return !store.Dirty(versionID) }, waitFor, tick)
	assert.Empty(t, store.Validation(versionID).Issues())
}

func TestAutosave_FailureKeepsDirtyAndDoesNotRetry(t *testing.T) {
	store, api, _ := setupTest(t)
	api.On("CreateVersion", strategyID, mock.Anything).Return(nil, errors.New("failed to create version: request failed (500): boom"))

	store.UpsertNode(versionID, node("a"))

	assert.Eventually(t, func() bool {
		return store.Validation(versionID).Status() == validation.StatusError
	}, waitFor, tick)
	assert.True(t, store.Dirty(versionID))
	assert.Contains(t, validation.MessageOf(store.Validation(versionID)), "boom")

	time.Sleep(3 * debounce)
	api.AssertNumberOfCalls(t, "CreateVersion", 1)
}

func TestAutosave_EditDuringSaveStaysDirty(t *testing.T) {
	store, api, c := setupTest(t)
	release := make(chan struct{})
	started := make(chan struct{})
	second := make(chan struct{})
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2), nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Once()
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-2", 3), nil).Run(func(mock.Arguments) {
		close(second)
	}).Once()

	store.UpsertNode(versionID, node("a"))
	<-started
	assert.True(t, c.Saving(versionID))

	store.UpsertNode(versionID, node("b"))
	close(release)

	assert.Eventually(t, func() bool { return !c.Saving(versionID) }, waitFor, tick)
	select {
	case <-second:
	case <-time.After(waitFor):
		t.Fatal("edit made during a save was never saved")
	}
	assert.Eventually(t, func() bool { return !store.Dirty(versionID) }, waitFor, tick)
	api.AssertExpectations(t)
}

func TestAutosave_OverlappingValidateKeepsSaveResult(t *testing.T) {
	store, api, c := setupTest(t)
	release := make(chan struct{})
	started := make(chan struct{})
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2, issue("server")), nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Once()
	api.On("ValidateGraph", strategyID, mock.Anything).Return([]models.CanvasValidationIssue{issue("validated")}, nil).Once()

	store.UpsertNode(versionID, node("a"))
	<-started
	require.NoError(t, c.Validate(context.Background(), versionID))
	close(release)

	assert.Eventually(t, func() bool { return !c.Saving(versionID) && !store.Dirty(versionID) }, waitFor, tick)
	assert.Equal(t, []models.CanvasValidationIssue{issue("validated")}, store.Validation(versionID).Issues())

	list, err := c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "saved-1", list[0].ID)
	api.AssertNotCalled(t, "ListVersions", mock.Anything)

	time.Sleep(3 * debounce)
	api.AssertNumberOfCalls(t, "CreateVersion", 1)
}

func TestAutosave_EarlierTimerKeepsNewerEntry(t *testing.T) {
	_, _, c := setupTest(t)
	c.schedule(versionID)
	c.mu.Lock()
	gen := c.timerGen[versionID]
	c.mu.Unlock()
	c.schedule(versionID)

	c.autosave(versionID, gen)

	c.mu.Lock()
	_, pending := c.timers[versionID]
	c.mu.Unlock()
	assert.True(t, pending)

	c.stopTimer(versionID)
	c.mu.Lock()
	_, pending = c.timers[versionID]
	c.mu.Unlock()
	assert.False(t, pending)
}

func TestAutosave_SkipsLocalDraft(t *testing.T) {
	store, api, _ := setupTest(t)
	store.LoadVersion(canvas.LoadParams{StrategyID: "demo", VersionID: "demo-draft", Graph: models.EmptyGraph()})

	store.UpsertNode("demo-draft", node("a"))
	time.Sleep(3 * debounce)

	assert.True(t, store.Dirty("demo-draft"))
	api.AssertNotCalled(t, "CreateVersion", mock.Anything, mock.Anything)
}

func TestAutosave_LoadCancelsPendingTimer(t *testing.T) {
	store, api, c := setupTest(t)
	store.UpsertNode(versionID, node("a"))
	c.Load(strategyID, *summary(versionID, 1))

	time.Sleep(3 * debounce)
	assert.False(t, store.Dirty(versionID))
	api.AssertNotCalled(t, "CreateVersion", mock.Anything, mock.Anything)
}

func TestValidate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store, api, c := setupTest(t)
		store.SetValidationResult(versionID, []models.CanvasValidationIssue{issue("old")})
		api.On("ValidateGraph", strategyID, models.EmptyGraph()).Return([]models.CanvasValidationIssue{issue("new")}, nil)

		require.NoError(t, c.Validate(context.Background(), versionID))
		assert.Equal(t, []models.CanvasValidationIssue{issue("new")}, store.Validation(versionID).Issues())
		assert.False(t, store.Dirty(versionID))
	})

	t.Run("NetworkFailureIsRecorded", func(t *testing.T) {
		store, api, c := setupTest(t)
		store.SetValidationResult(versionID, []models.CanvasValidationIssue{issue("old")})
		api.On("ValidateGraph", strategyID, mock.Anything).Return(nil, errors.New("connection refused"))

		require.NoError(t, c.Validate(context.Background(), versionID))
		state := store.Validation(versionID)
		assert.Equal(t, validation.StatusError, state.Status())
		assert.Equal(t, "connection refused", validation.MessageOf(state))
		assert.Equal(t, []models.CanvasValidationIssue{issue("old")}, state.Issues())
	})

	t.Run("MissingSessionIsReturned", func(t *testing.T) {
		store, api, c := setupTest(t)
		api.On("ValidateGraph", strategyID, mock.Anything).Return(nil, session.ErrMissingSession)

		err := c.Validate(context.Background(), versionID)
		assert.ErrorIs(t, err, session.ErrMissingSession)
		assert.Equal(t, validation.StatusError, store.Validation(versionID).Status())
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		_, _, c := setupTest(t)
		err := c.Validate(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNoStrategy)
	})

	t.Run("PendingWhileInFlight", func(t *testing.T) {
		store, api, c := setupTest(t)
		release := make(chan struct{})
		api.On("ValidateGraph", strategyID, mock.Anything).Return([]models.CanvasValidationIssue{}, nil).Run(func(mock.Arguments) {
			<-release
		})

		done := make(chan error)
		go func() { done <- c.Validate(context.Background(), versionID) }()
		assert.Eventually(t, func() bool {
			return store.Validation(versionID).Status() == validation.StatusPending
		}, waitFor, tick)
		close(release)
		assert.NoError(t, <-done)
		assert.Equal(t, validation.StatusIdle, store.Validation(versionID).Status())
	})
}

func TestValidate_StaleResponseIsDiscarded(t *testing.T) {
	store, api, c := setupTest(t)
	slow := make(chan struct{})
	started := make(chan struct{})

	api.On("ValidateGraph", strategyID, mock.MatchedBy(func(g models.StrategyGraph) bool { return len(g.Nodes) == 0 })).
		Return([]models.CanvasValidationIssue{issue("stale")}, nil).
		Run(func(mock.Arguments) {
			close(started)
			<-slow
		})
	api.On("ValidateGraph", strategyID, mock.MatchedBy(func(g models.StrategyGraph) bool { return len(g.Nodes) == 1 })).
		Return([]models.CanvasValidationIssue{issue("fresh")}, nil)
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2, issue("fresh")), nil).Maybe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Validate(context.Background(), versionID))
	}()
	<-started

	store.UpsertNode(versionID, node("a"))
	require.NoError(t, c.Validate(context.Background(), versionID))
	close(slow)
	wg.Wait()

	assert.Equal(t, []models.CanvasValidationIssue{issue("fresh")}, store.Validation(versionID).Issues())
}

func TestLoad_InvalidatesInFlightValidation(t *testing.T) {
	store, api, c := setupTest(t)
	release := make(chan struct{})
	started := make(chan struct{})
	api.On("ValidateGraph", strategyID, mock.Anything).Return([]models.CanvasValidationIssue{issue("late")}, nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	})

	done := make(chan error)
	go func() { done <- c.Validate(context.Background(), versionID) }()
	<-started

	var switched []string
	c.opts.OnVersionSwitch = func(v models.StrategyVersionSummary) { switched = append(switched, v.ID) }
	c.Load(strategyID, *summary(versionID, 1, issue("loaded")))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []models.CanvasValidationIssue{issue("loaded")}, store.Validation(versionID).Issues())
	assert.Equal(t, []string{versionID}, switched)
}

func TestRevert(t *testing.T) {
	store, api, c := setupTest(t)
	created := summary("reverted-1", 4, issue("copied"))
	created.Label = "Revert to v1"
	created.Graph = models.StrategyGraph{Nodes: []models.StrategyNode{node("a")}, Edges: []models.StrategyEdge{}}

	started := make(chan struct{})
	release := make(chan struct{})
	api.On("RevertVersion", strategyID, versionID).Return(created, nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	})

	var switched models.StrategyVersionSummary
	c.opts.OnVersionSwitch = func(v models.StrategyVersionSummary) { switched = v }

	done := make(chan error)
	go func() {
		_, err := c.Revert(context.Background(), strategyID, versionID)
		done <- err
	}()
	<-started
	assert.Equal(t, versionID, c.RevertingID())
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, c.RevertingID())
	assert.Equal(t, "reverted-1", store.ActiveVersionID())
	graph, ok := store.Graph("reverted-1")
	require.True(t, ok)
	assert.Len(t, graph.Nodes, 1)
	assert.False(t, store.CanUndo("reverted-1"))
	assert.Equal(t, "reverted-1", switched.ID)

	notice, ok := c.Notice()
	assert.True(t, ok)
	assert.Equal(t, "Restored version Revert to v1", notice)
	assert.Eventually(t, func() bool {
		_, showing := c.Notice()
		return !showing
	}, waitFor, tick)
}

func TestRevert_Failure(t *testing.T) {
	store, api, c := setupTest(t)
	api.On("RevertVersion", strategyID, "old").Return(nil, errors.New("failed to revert version: request failed (404): not found"))

	_, err := c.Revert(context.Background(), strategyID, "old")
	assert.ErrorContains(t, err, "404")
	assert.Equal(t, versionID, store.ActiveVersionID())
	_, showing := c.Notice()
	assert.False(t, showing)
}

func TestRevert_NoStrategy(t *testing.T) {
	c := New(canvas.NewStore(), new(MockAPI), zap.NewNop(), Options{})
	defer c.Close()
	_, err := c.Revert(context.Background(), "", versionID)
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestListVersions_Cache(t *testing.T) {
	store, api, c := setupTest(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	api.On("ListVersions", strategyID).Return([]models.StrategyVersionSummary{*summary(versionID, 1)}, nil)
	api.On("CreateVersion", strategyID, mock.Anything).Return(summary("saved-1", 2), nil)

	list, err := c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "ListVersions", 1)

	store.UpsertNode(versionID, node("a"))
	assert.Eventually(t, func() bool { return !store.Dirty(versionID) }, waitFor, tick)

	list, err = c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "saved-1", list[0].ID)
	api.AssertNumberOfCalls(t, "ListVersions", 1)

	now = now.Add(2 * time.Minute)
	list, err = c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	api.AssertNumberOfCalls(t, "ListVersions", 2)
}

func TestListVersions_Draft(t *testing.T) {
	_, api, c := setupTest(t)
	list, err := c.ListVersions(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, list)
	api.AssertNotCalled(t, "ListVersions", mock.Anything)
}

func TestRemember_DedupesByID(t *testing.T) {
	_, _, c := setupTest(t)
	c.cache[strategyID] = cacheEntry{versions: []models.StrategyVersionSummary{*summary("b", 2), *summary("a", 1)}, fetchedAt: c.now()}

	c.remember(strategyID, *summary("a", 3))

	ids := []string{}
	for _, v := range c.cache[strategyID].versions {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 3, c.cache[strategyID].versions[0].Version)
}

func TestRemember_SeedsUnfetchedList(t *testing.T) {
	_, api, c := setupTest(t)
	c.remember(strategyID, *summary("a", 1))

	list, err := c.ListVersions(context.Background(), strategyID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	api.AssertNotCalled(t, "ListVersions", mock.Anything)
}

func TestBootstrap(t *testing.T) {
	t.Run("Draft", func(t *testing.T) {
		store, api, c := setupTest(t)
		v, err := c.Bootstrap(context.Background(), "demo")
		require.NoError(t, err)
		assert.Equal(t, "demo-draft", v.ID)
		assert.Equal(t, 1, v.Version)
		assert.Equal(t, "Draft", v.Label)
		assert.Equal(t, "demo-draft", store.ActiveVersionID())
		assert.Equal(t, "demo", store.ActiveStrategyID())
		api.AssertNotCalled(t, "ListVersions", mock.Anything)
	})

	t.Run("Newest", func(t *testing.T) {
		store, api, c := setupTest(t)
		api.On("ListVersions", strategyID).Return([]models.StrategyVersionSummary{*summary("newest", 5), *summary("older", 4)}, nil)
		v, err := c.Bootstrap(context.Background(), strategyID)
		require.NoError(t, err)
		assert.Equal(t, "newest", v.ID)
		assert.Equal(t, "newest", store.ActiveVersionID())
	})

	t.Run("NoVersions", func(t *testing.T) {
		_, api, c := setupTest(t)
		api.On("ListVersions", strategyID).Return([]models.StrategyVersionSummary{}, nil)
		_, err := c.Bootstrap(context.Background(), strategyID)
		assert.ErrorIs(t, err, ErrNoVersions)
	})

	t.Run("ListFails", func(t *testing.T) {
		_, api, c := setupTest(t)
		api.On("ListVersions", strategyID).Return(nil, session.ErrMissingSession)
		_, err := c.Bootstrap(context.Background(), strategyID)
		assert.ErrorIs(t, err, session.ErrMissingSession)
	})

	t.Run("EmptyID", func(t *testing.T) {
		_, _, c := setupTest(t)
		_, err := c.Bootstrap(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoStrategy)
	})
}

func TestClose_StopsPendingAutosave(t *testing.T) {
	store, api, c := setupTest(t)
	store.UpsertNode(versionID, node("a"))
	c.Close()

	time.Sleep(3 * debounce)
	assert.True(t, store.Dirty(versionID))
	api.AssertNotCalled(t, "CreateVersion", mock.Anything, mock.Anything)
}
