package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/models"
	"github.com/zundamotion/zundamotion/internal/script"
)

type stubPhase struct {
	id    string
	err   error
	calls *[]string
	seen  *State
}

func (s *stubPhase) ID() string   { return s.id }
func (s *stubPhase) Name() string { return s.id + " phase" }

func (s *stubPhase) Run(_ context.Context, state *State) error {
	*s.calls = append(*s.calls, s.id)
	s.seen = state
	return s.err
}

func testScript() *script.Config {
	return &script.Config{
		Scenes: []script.Scene{{ID: "intro", BG: "bg.png"}},
	}
}

func TestOrchestratorRunsPhasesInOrder(t *testing.T) {
	var calls []string
	a := &stubPhase{id: "audio", calls: &calls}
	b := &stubPhase{id: "video", calls: &calls}
	c := &stubPhase{id: "finalize", calls: &calls}

	state := NewState(testScript(), &config.Config{})
	orch := NewOrchestrator(nil, a, b, c)

	require.NoError(t, orch.Execute(context.Background(), state))
	assert.Equal(t, []string{"audio", "video", "finalize"}, calls)
	assert.NotEmpty(t, state.RunID)
}

func TestOrchestratorProvidesTempDir(t *testing.T) {
	var calls []string
	phase := &stubPhase{id: "audio", calls: &calls}

	state := NewState(testScript(), &config.Config{})
	require.NoError(t, NewOrchestrator(nil, phase).Execute(context.Background(), state))

	assert.NotEmpty(t, phase.seen.TempDir)
	assert.NoDirExists(t, phase.seen.TempDir, "temp dir should be removed after execution")
}

func TestOrchestratorWrapsPhaseErrors(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	a := &stubPhase{id: "audio", calls: &calls}
	b := &stubPhase{id: "video", calls: &calls, err: boom}
	c := &stubPhase{id: "finalize", calls: &calls}

	err := NewOrchestrator(nil, a, b, c).Execute(context.Background(), NewState(testScript(), &config.Config{}))
	require.Error(t, err)

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "video", phaseErr.PhaseID)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"audio", "video"}, calls, "finalize must not run after a failure")
}

func TestOrchestratorRejectsSecondExecute(t *testing.T) {
	var calls []string
	orch := NewOrchestrator(nil, &stubPhase{id: "audio", calls: &calls})

	require.NoError(t, orch.Execute(context.Background(), NewState(testScript(), &config.Config{})))
	err := orch.Execute(context.Background(), NewState(testScript(), &config.Config{}))
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestOrchestratorRejectsEmptyScreenplay(t *testing.T) {
	state := NewState(&script.Config{}, &config.Config{})
	err := NewOrchestrator(nil).Execute(context.Background(), state)
	assert.ErrorIs(t, err, ErrNoScenes)
}

func TestOrchestratorHonorsCancellation(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewOrchestrator(nil, &stubPhase{id: "audio", calls: &calls}).
		Execute(ctx, NewState(testScript(), &config.Config{}))
	require.Error(t, err)
	assert.Empty(t, calls)
}

func TestStatePutLineKeepsOrder(t *testing.T) {
	state := NewState(testScript(), &config.Config{})

	state.PutLine(&models.LineData{SceneID: "intro", LineIndex: 0, Type: models.LineTalk})
	state.PutLine(&models.LineData{SceneID: "intro", LineIndex: 1, Type: models.LineWait})
	state.PutLine(&models.LineData{SceneID: "intro", LineIndex: 0, Type: models.LineTalk})

	assert.Equal(t, []string{"intro_1", "intro_2"}, state.LineOrder)

	d, ok := state.Line("intro_2")
	require.True(t, ok)
	assert.Equal(t, models.LineWait, d.Type)
}

func TestReportCountersConcurrent(t *testing.T) {
	var r Report
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.AddClip(n%2 == 0)
			r.AddCacheResult(n%5 == 0)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Clips)
	assert.Equal(t, 25, r.CPUOverlayClips)
	assert.Equal(t, 10, r.CacheHits)
	assert.Equal(t, 40, r.CacheMisses)
}
