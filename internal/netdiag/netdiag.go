// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netdiag reads link-layer diagnostics (speed, duplex) for
// NetworkIfaceConfig surfaced at GET /net_dev/{iface}/link. Grounded on the
// teacher's internal/ebpf/performance.HardwareOffload, which opens the same
// github.com/safchain/ethtool handle per call rather than holding it open
// across the process lifetime.
package netdiag

import (
	"fmt"

	"github.com/safchain/ethtool"
)

// LinkInfo reports what the NIC driver exposes through ethtool for iface.
type LinkInfo struct {
	Iface  string `json:"iface"`
	SpeedMbps uint32 `json:"speed_mbps"`
	Duplex string `json:"duplex"`
	Driver string `json:"driver,omitempty"`
}

func duplexName(d uint8) string {
	switch d {
	case ethtool.DUPLEX_HALF:
		return "half"
	case ethtool.DUPLEX_FULL:
		return "full"
	default:
		return "unknown"
	}
}

// ReadLink opens a fresh ethtool handle and queries iface's negotiated
// link settings. Interfaces with no driver support (virtual, loopback)
// return an error rather than a zeroed LinkInfo.
func ReadLink(iface string) (LinkInfo, error) {
	eth, err := ethtool.NewEthtool()
	if err != nil {
		return LinkInfo{}, fmt.Errorf("open ethtool: %w", err)
	}
	defer eth.Close()

	var cmd ethtool.EthtoolCmd
	speed, err := eth.CmdGet(&cmd, iface)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("ethtool cmd get %s: %w", iface, err)
	}

	info := LinkInfo{
		Iface:     iface,
		SpeedMbps: speed,
		Duplex:    duplexName(cmd.Duplex),
	}
	if drvInfo, err := eth.DriverInfo(iface); err == nil {
		info.Driver = drvInfo.Driver
	}
	return info, nil
}
