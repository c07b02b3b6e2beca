package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/remote"
	"github.com/sheetscrape/console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, max int) (*Manager, *testutil.FakeService, *fakeClock) {
	t.Helper()
	svc := testutil.NewFakeService()
	t.Cleanup(svc.Close)
	client := remote.NewClient(svc.URL())

	m := NewManager(func(id string) *controller.Controller {
		return controller.New(client, controller.Options{SessionID: id})
	}, max, nil)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, svc, clock
}

func sheet(name string) *models.SelectedFile {
	return models.NewSelectedFile(name, 1, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _, _ := newTestManager(t, 0)

	s, err := m.Create()
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)
	assert.Equal(t, s.ID, s.Controller.SessionID())
	assert.Equal(t, s.ID, s.Controller.View().SessionID)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestManager_TouchSession(t *testing.T) {
	m, _, clock := newTestManager(t, 0)
	s, _ := m.Create()

	clock.Advance(time.Minute)
	assert.True(t, m.TouchSession(s.ID))
	assert.Equal(t, clock.Now(), s.LastAccessed)
	assert.False(t, m.TouchSession("missing"))
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m, _, clock := newTestManager(t, 0)

	var removed []string
	m.OnRemove(func(s *State) { removed = append(removed, s.ID) })

	old, _ := m.Create()
	clock.Advance(20 * time.Minute)
	fresh, _ := m.Create()
	clock.Advance(15 * time.Minute)

	n := m.CleanupOldSessions(30 * time.Minute)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{old.ID}, removed)

	_, ok := m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestManager_CleanupRespectsKeepAliveWindow(t *testing.T) {
	m, _, clock := newTestManager(t, 0)
	s, _ := m.Create()
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 0, m.CleanupOldSessions(time.Second))
	_, ok := m.Get(s.ID)
	assert.True(t, ok)
}

func TestManager_CleanupKeepsBusySessions(t *testing.T) {
	m, svc, clock := newTestManager(t, 0)
	release := svc.HoldUpload()

	s, _ := m.Create()
	require.NoError(t, s.Controller.SelectFile(sheet("a.xlsx")))
	done, err := s.Controller.Start(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, m.CleanupOldSessions(time.Minute))
	assert.ErrorIs(t, m.Delete(s.ID), ErrSessionBusy)

	release()
	<-done
	assert.Equal(t, 1, m.CleanupOldSessions(time.Minute))
}

func TestManager_EvictsOldestIdleAtCapacity(t *testing.T) {
	m, _, clock := newTestManager(t, 2)

	first, _ := m.Create()
	clock.Advance(time.Second)
	second, _ := m.Create()
	clock.Advance(time.Second)
	m.TouchSession(first.ID)

	third, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())

	_, ok := m.Get(second.ID)
	assert.False(t, ok, "least recently used session is evicted")
	_, ok = m.Get(first.ID)
	assert.True(t, ok)
	_, ok = m.Get(third.ID)
	assert.True(t, ok)
}

func TestManager_TooManyBusySessions(t *testing.T) {
	m, svc, _ := newTestManager(t, 1)
	release := svc.HoldUpload()
	defer release()

	s, _ := m.Create()
	require.NoError(t, s.Controller.SelectFile(sheet("a.xlsx")))
	_, err := s.Controller.Start(context.Background())
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManager_DeleteAndStagedFiles(t *testing.T) {
	m, _, _ := newTestManager(t, 0)
	var removed *State
	m.OnRemove(func(s *State) { removed = s })

	s, _ := m.Create()
	prev, err := m.SwapStagedFile(s.ID, "file-1")
	require.NoError(t, err)
	assert.Empty(t, prev)
	prev, err = m.SwapStagedFile(s.ID, "file-2")
	require.NoError(t, err)
	assert.Equal(t, "file-1", prev)

	_, err = m.SwapStagedFile("missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(s.ID))
	require.NotNil(t, removed)
	assert.Equal(t, "file-2", removed.StagedFileID)
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
}

func TestManager_DrainWaitsForRuns(t *testing.T) {
	m, svc, _ := newTestManager(t, 0)
	s, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, s.Controller.SelectFile(sheet("a.xlsx")))

	require.NoError(t, m.Drain(context.Background()), "nothing in flight")

	release := svc.HoldUpload()
	_, err = s.Controller.Start(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Drain(ctx), context.DeadlineExceeded)

	release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, m.Drain(ctx2))
	assert.False(t, s.Controller.Busy())
}

func TestState_LockSelection(t *testing.T) {
	m, _, _ := newTestManager(t, 0)
	s, err := m.Create()
	require.NoError(t, err)

	unlock := s.LockSelection()
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		s.LockSelection()()
	}()

	select {
	case <-acquired:
		t.Fatal("second selection ran while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released")
	}
}
