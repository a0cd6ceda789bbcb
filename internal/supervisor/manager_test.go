// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/logging"
)

type fakeConfig struct {
	Value int
}

// fakeStarter spins a goroutine that waits for Stopping then flips to Stop,
// mirroring the graceful-stop protocol a real per-service starter follows.
type fakeStarter struct {
	mu     sync.Mutex
	starts int
}

func (f *fakeStarter) Start(ctx context.Context, iface string, cfg fakeConfig) (*WatchService, error) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()

	w := NewWatchService()
	w.JustChangeStatus(StatusRunning)
	go func() {
		w.WaitToStopping()
		w.JustChangeStatus(StatusStop)
	}()
	return w, nil
}

func (f *fakeStarter) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func newTestManager() (*ServiceManager[*fakeStarter, fakeConfig], *fakeStarter) {
	starter := &fakeStarter{}
	log := logging.New(logging.Config{Level: logging.LevelError})
	m := New[*fakeStarter, fakeConfig](starter, nil, log)
	return m, starter
}

func TestServiceManager_UpdateService_StartsWorker(t *testing.T) {
	m, starter := newTestManager()
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 1}, true))

	status := m.GetAllStatus()
	assert.Equal(t, StatusRunning, status["eth0"])
	assert.Equal(t, 1, starter.startCount())
}

func TestServiceManager_UpdateService_RestartsRunningWorker(t *testing.T) {
	m, starter := newTestManager()
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 1}, true))
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 2}, true))

	assert.Equal(t, 2, starter.startCount())
	status := m.GetAllStatus()
	assert.Equal(t, StatusRunning, status["eth0"])
}

func TestServiceManager_UpdateService_DisableLeavesStop(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 1}, true))
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 1}, false))

	_, ok := m.GetAllStatus()["eth0"]
	assert.False(t, ok)
}

func TestServiceManager_StopService(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.UpdateService(context.Background(), "eth0", fakeConfig{Value: 1}, true))

	watch := m.StopService("eth0")
	require.NotNil(t, watch)

	require.Eventually(t, func() bool {
		return watch.Status() == StatusStop
	}, time.Second, time.Millisecond)

	_, ok := m.GetAllStatus()["eth0"]
	assert.False(t, ok)
}

func TestServiceManager_RestartOnReappear(t *testing.T) {
	starter := &fakeStarter{}
	log := logging.New(logging.Config{Level: logging.LevelError})
	bus := eventbus.New(4)
	m := New[*fakeStarter, fakeConfig](starter, bus, log)
	defer m.Shutdown()

	require.NoError(t, m.UpdateService(context.Background(), "wlan0", fakeConfig{Value: 9}, true))
	assert.Equal(t, 1, starter.startCount())

	require.NoError(t, bus.PublishIface(context.Background(), eventbus.IfaceEvent{Name: "wlan0", Up: true}))

	require.Eventually(t, func() bool {
		return starter.startCount() >= 2
	}, time.Second, time.Millisecond*5)
}
