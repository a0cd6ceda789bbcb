// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package routewan implements the route_wans service kind (spec §4.6):
// attaches the WAN-side egress hook that consults the dst-mark and
// flow-entry kernel maps (internal/steering/dstmark, internal/steering/flowtable)
// to steer outbound traffic. Attach/detach-only, no persistent runtime
// state beyond the kernel attachment.
package routewan

import (
	"context"
	"fmt"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

const progRouteWan = "route_wan_egress"

// Starter implements supervisor.Starter[domain.RouteWanPayload].
type Starter struct {
	Log     *logging.Logger
	Manager *maps.Manager
}

func New(log *logging.Logger, mgr *maps.Manager) *Starter {
	return &Starter{Log: log, Manager: mgr}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg domain.RouteWanPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("routewan").With(iface)
	w := supervisor.NewWatchService()

	a, err := s.Manager.AttachTCX(progRouteWan, iface, true)
	if err != nil {
		return nil, fmt.Errorf("attach route-wan hook on %s: %w", iface, err)
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		_ = a.Close()
		log.Info("stopped")
	})
	return w, nil
}
