// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package domain

// FirewallRuleConfig is a priority-indexed allow/deny rule, referencing
// either an inline specification or a geo-source key (spec §3).
type FirewallRuleConfig struct {
	ID       ConfigID      `json:"id"`
	Index    int           `json:"index"`
	Enable   bool          `json:"enable"`
	Action   string        `json:"action"` // "allow" | "deny"
	Source   []DstIpSource `json:"source"`
	Remark   string        `json:"remark,omitempty"`
	UpdateAt float64       `json:"update_at"`
}

func (c *FirewallRuleConfig) GetID() ConfigID       { return c.ID }
func (c *FirewallRuleConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *FirewallRuleConfig) SetUpdateAt(t float64) { c.UpdateAt = t }

// FirewallBlacklistConfig is a named set of deny entries, analogous in
// shape to FirewallRuleConfig but always deny (spec §3).
type FirewallBlacklistConfig struct {
	ID       ConfigID      `json:"id"`
	Enable   bool          `json:"enable"`
	Source   []DstIpSource `json:"source"`
	Remark   string        `json:"remark,omitempty"`
	UpdateAt float64       `json:"update_at"`
}

func (c *FirewallBlacklistConfig) GetID() ConfigID       { return c.ID }
func (c *FirewallBlacklistConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *FirewallBlacklistConfig) SetUpdateAt(t float64) { c.UpdateAt = t }

// StaticNatMapping binds an external (WAN) ip:port to an internal
// (LAN) ip:port (spec §3).
type StaticNatMapping struct {
	ID         ConfigID `json:"id"`
	Enable     bool     `json:"enable"`
	Protocol   string   `json:"protocol"` // "tcp" | "udp"
	ExternalIP string   `json:"external_ip"`
	ExternalPort uint16 `json:"external_port"`
	InternalIP   string `json:"internal_ip"`
	InternalPort uint16 `json:"internal_port"`
	Remark       string `json:"remark,omitempty"`
	UpdateAt     float64 `json:"update_at"`
}

func (c *StaticNatMapping) GetID() ConfigID       { return c.ID }
func (c *StaticNatMapping) GetUpdateAt() float64  { return c.UpdateAt }
func (c *StaticNatMapping) SetUpdateAt(t float64) { c.UpdateAt = t }

// EnrolledDevice is a user-registered LAN device (GLOSSARY).
type EnrolledDevice struct {
	ID       ConfigID `json:"id"`
	MAC      string   `json:"mac"`
	IPv4     string   `json:"ipv4,omitempty"`
	IPv6     []string `json:"ipv6,omitempty"`
	Name     string   `json:"name,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	UpdateAt float64  `json:"update_at"`
}

func (c *EnrolledDevice) GetID() ConfigID       { return c.ID }
func (c *EnrolledDevice) GetUpdateAt() float64  { return c.UpdateAt }
func (c *EnrolledDevice) SetUpdateAt(t float64) { c.UpdateAt = t }

// GeoSourceKind selects where a GeoSourceConfig's raw data comes from.
type GeoSourceKind int

const (
	GeoSourceURL GeoSourceKind = iota
	GeoSourceFile
)

// GeoSourceConfig is a named geo database (site list or CIDR list),
// refreshed into the geo cache (spec §3, GLOSSARY "Geo key").
type GeoSourceConfig struct {
	ID       ConfigID      `json:"id"`
	Name     string        `json:"name"`
	Enable   bool          `json:"enable"`
	Kind     GeoSourceKind `json:"kind"`
	Location string        `json:"location"` // URL or file path
	IsSite   bool          `json:"is_site"`  // true: geosite (domains), false: geoip (cidrs)
	UpdateAt float64       `json:"update_at"`
}

func (c *GeoSourceConfig) GetID() ConfigID       { return c.ID }
func (c *GeoSourceConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *GeoSourceConfig) SetUpdateAt(t float64) { c.UpdateAt = t }

// GeoFileCacheKey identifies one materialized slice of a geo database.
type GeoFileCacheKey struct {
	Name  string
	Key   string
	Attrs map[string]string
}
