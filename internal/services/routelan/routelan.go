// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package routelan implements the route_lans service kind (spec §4.6):
// attaches the LAN-side ingress hook that classifies traffic by flow entry
// (internal/steering/flowtable) before it reaches the WAN egress hook.
// Attach/detach-only, no persistent runtime state beyond the kernel
// attachment.
package routelan

import (
	"context"
	"fmt"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

const progRouteLan = "route_lan_ingress"

// Starter implements supervisor.Starter[domain.RouteLanPayload].
type Starter struct {
	Log     *logging.Logger
	Manager *maps.Manager
}

func New(log *logging.Logger, mgr *maps.Manager) *Starter {
	return &Starter{Log: log, Manager: mgr}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg domain.RouteLanPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("routelan").With(iface)
	w := supervisor.NewWatchService()

	a, err := s.Manager.AttachXDP(progRouteLan, iface)
	if err != nil {
		return nil, fmt.Errorf("attach route-lan hook on %s: %w", iface, err)
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		_ = a.Close()
		log.Info("stopped")
	})
	return w, nil
}
