// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/cremalink/internal/log"
)

type fakeManager struct {
	startErr  error
	shutdowns atomic.Int32
}

func (f *fakeManager) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeManager) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	return nil
}

func (f *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestApp_RequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestApp_RunUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var started atomic.Bool
	watchers := []Watcher{
		{Name: "ok", Start: func(context.Context) error { started.Store(true); return nil }},
		{Name: "broken", Start: func(context.Context) error { return errors.New("no inotify") }},
	}
	mgr := &fakeManager{}
	app := NewApp(log.WithComponent("test"), mgr, nil, watchers...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	assert.Eventually(t, started.Load, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, mgr.shutdowns.Load())
}

func TestApp_StartFailureShutsDown(t *testing.T) {
	boom := errors.New("bind failed")
	mgr := &fakeManager{startErr: boom}
	app := NewApp(log.WithComponent("test"), mgr, nil)
	assert.ErrorIs(t, app.Run(context.Background()), boom)
	assert.EqualValues(t, 1, mgr.shutdowns.Load())
}
