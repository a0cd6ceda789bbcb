// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package domain

// ZoneType is the logical role of an interface; gates which services may be
// enabled on it (spec §3, GLOSSARY "Zone").
type ZoneType int

const (
	ZoneUndefined ZoneType = iota
	ZoneLAN
	ZoneWAN
)

func (z ZoneType) String() string {
	switch z {
	case ZoneLAN:
		return "lan"
	case ZoneWAN:
		return "wan"
	default:
		return "undefined"
	}
}

// CreateDevType is how an interface's underlying device was created.
type CreateDevType int

const (
	DevPhysical CreateDevType = iota
	DevBridge
	DevVLAN
	DevPPPoE
)

// WifiMode describes a wireless interface's operating mode, carried
// opaquely since the 802.11 stack is an external collaborator.
type WifiMode string

// CPUMapping pins XPS/RPS queues to CPUs for an interface.
type CPUMapping struct {
	XPS []int `json:"xps,omitempty"`
	RPS []int `json:"rps,omitempty"`
}

// NetworkIfaceConfig is the persisted configuration of one network
// interface (spec §3).
type NetworkIfaceConfig struct {
	Name           IfaceName     `json:"name"`
	CreateDevType  CreateDevType `json:"create_dev_type"`
	ControllerName string        `json:"controller_name,omitempty"` // bridge parent
	ZoneType       ZoneType      `json:"zone_type"`
	EnableInBoot   bool          `json:"enable_in_boot"`
	WifiMode       WifiMode      `json:"wifi_mode,omitempty"`
	CPUMapping     *CPUMapping   `json:"cpu_mapping,omitempty"`
	UpdateAt       float64       `json:"update_at"`
}

func (c *NetworkIfaceConfig) GetID() IfaceName        { return c.Name }
func (c *NetworkIfaceConfig) GetUpdateAt() float64    { return c.UpdateAt }
func (c *NetworkIfaceConfig) SetUpdateAt(t float64)   { c.UpdateAt = t }

// ZoneRequirement gates which zone a per-interface service may run on
// (spec I3).
type ZoneRequirement int

const (
	ZoneAny ZoneRequirement = iota
	ZoneLanOnly
	ZoneWanOrPpp
)

// Satisfies reports whether an interface's zone meets this requirement.
func (r ZoneRequirement) Satisfies(z ZoneType, devType CreateDevType) bool {
	switch r {
	case ZoneLanOnly:
		return z == ZoneLAN
	case ZoneWanOrPpp:
		return z == ZoneWAN || devType == DevPPPoE
	default:
		return true
	}
}
