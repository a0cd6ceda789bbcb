// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wifi implements the wifi service kind (spec §4.6): the 802.11
// stack itself is an external collaborator (the WifiMode field is carried
// opaquely per internal/domain/network.go), so this starter's job is to
// render a hostapd config for the interface's SSID/PSK and supervise the
// hostapd process, mirroring the PPPoE dial-file pattern in
// internal/services/ifaceip.
package wifi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/services"
	"grimm.is/flywall/internal/supervisor"
)

// Starter implements supervisor.Starter[*domain.WifiPayload].
type Starter struct {
	Log       *logging.Logger
	ConfigDir string // defaults to /etc/hostapd
}

func New(log *logging.Logger) *Starter {
	return &Starter{Log: log, ConfigDir: "/etc/hostapd"}
}

func (s *Starter) Start(ctx context.Context, iface string, cfg *domain.WifiPayload) (*supervisor.WatchService, error) {
	log := s.Log.With("wifi").With(iface)
	w := supervisor.NewWatchService()

	confPath := filepath.Join(s.ConfigDir, iface+".conf")
	if err := writeHostapdConf(confPath, iface, cfg); err != nil {
		return nil, fmt.Errorf("write hostapd config for %s: %w", iface, err)
	}

	cmd := exec.Command("hostapd", confPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start hostapd on %s: %w", iface, err)
	}

	w.JustChangeStatus(supervisor.StatusRunning)
	services.RunUntilStopping(w, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = os.Remove(confPath)
		log.Info("stopped")
	})
	return w, nil
}

func writeHostapdConf(path, iface string, cfg *domain.WifiPayload) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf(
		"interface=%s\ndriver=nl80211\nssid=%s\nwpa=2\nwpa_passphrase=%s\nwpa_key_mgmt=WPA-PSK\nrsn_pairwise=CCMP\n",
		iface, cfg.SSID, string(cfg.PSK),
	)
	return os.WriteFile(path, []byte(content), 0o600)
}
