// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package mssclamp implements the mss_clamp service kind (spec §4.6):
// attach-only TCP MSS clamping on a WAN interface's TCX egress hook. No
// persistent runtime state is kept beyond the kernel attachment itself.
package mssclamp

import (
	"context"
	"fmt"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

const (
	progMSSClamp = "mss_clamp_egress"
	mssConfigMap = "mss_clamp_config"
)

// Starter implements supervisor.Starter[*domain.MSSClampPayload].
type Starter struct {
	Log     *logging.Logger
	Manager *maps.Manager
}

func New(log *logging.Logger, mgr *maps.Manager) *Starter {
	return &Starter{Log: log, Manager: mgr}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.MSSClampPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("mssclamp").With(iface)
	w := supervisor.NewWatchService()

	a, err := s.Manager.AttachTCX(progMSSClamp, iface, true)
	if err != nil {
		return nil, fmt.Errorf("attach mss clamp on %s: %w", iface, err)
	}

	if cfg.ClampValue > 0 {
		if err := s.Manager.SetIfaceU32Config(mssConfigMap, iface, uint32(cfg.ClampValue)); err != nil {
			log.Warn("set mss clamp value on %s: %v", iface, err)
		}
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		_ = a.Close()
		log.Info("stopped")
	})
	return w, nil
}
