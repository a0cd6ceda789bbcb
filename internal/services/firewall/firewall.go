// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall implements the firewall service kind (spec §4.6):
// attach-only XDP firewall hook on an interface. Rule contents (allow/deny
// entries, blacklists) are pushed into kernel maps by
// internal/configservice's firewall hooks independently of this starter;
// this starter only owns the attach/detach lifecycle, per §4.6.
package firewall

import (
	"context"
	"fmt"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

const progFirewall = "firewall_ingress"

// Starter implements supervisor.Starter[domain.FirewallPayload].
type Starter struct {
	Log     *logging.Logger
	Manager *maps.Manager
}

func New(log *logging.Logger, mgr *maps.Manager) *Starter {
	return &Starter{Log: log, Manager: mgr}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg domain.FirewallPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("firewall").With(iface)
	w := supervisor.NewWatchService()

	a, err := s.Manager.AttachXDP(progFirewall, iface)
	if err != nil {
		return nil, fmt.Errorf("attach firewall on %s: %w", iface, err)
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		_ = a.Close()
		log.Info("stopped")
	})
	return w, nil
}
