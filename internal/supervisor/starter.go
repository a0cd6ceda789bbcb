// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package supervisor

import "context"

// Starter is the tagged-variant registry contract (spec §9 "Dynamic
// polymorphism over services", §4.6): one implementation per service kind.
// Start resolves the interface before spinning up its worker goroutine(s)
// and does not block past that point — it hands back a WatchService the
// caller (ServiceManager) observes. The implementations in
// internal/services do not check the interface's zone requirement.
type Starter[C any] interface {
	// Start begins the worker for the given interface and config. It must
	// return promptly; the implementations in internal/services attach
	// their kernel hooks and set the WatchService to Running before
	// returning it.
	Start(ctx context.Context, iface string, cfg C) (*WatchService, error)
}
