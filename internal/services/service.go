// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package services holds the shared scaffolding every per-service starter
// in the Service Supervisor (spec §4.6) builds on top of: the
// wait-to-stopping run loop every Starter.Start implementation follows.
package services

import "grimm.is/flywall/internal/supervisor"

// RunUntilStopping starts a goroutine that blocks on w.WaitToStopping(),
// invokes cleanup (detaching kernel hooks, closing client sockets, killing
// a dial process, ...), and then transitions w to StatusStop. Every
// concrete Starter calls this right after flipping w to StatusRunning,
// mirroring the supervisor test package's fakeStarter pattern.
func RunUntilStopping(w *supervisor.WatchService, cleanup func()) {
	go func() {
		w.WaitToStopping()
		if cleanup != nil {
			cleanup()
		}
		w.JustChangeStatus(supervisor.StatusStop)
	}()
}
