// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package domain

// ServiceKind tags the per-interface service starters of spec §4.6.
type ServiceKind string

const (
	ServiceIfaceIP   ServiceKind = "iface_ip"
	ServiceDHCPv4    ServiceKind = "dhcp_v4"
	ServiceDHCPv6PD  ServiceKind = "ipv6pd"
	ServiceICMPv6RA  ServiceKind = "icmpv6ra"
	ServiceNAT       ServiceKind = "nats"
	ServiceMSSClamp  ServiceKind = "mss_clamp"
	ServiceFirewall  ServiceKind = "firewall"
	ServiceRouteWAN  ServiceKind = "route_wans"
	ServiceRouteLAN  ServiceKind = "route_lans"
	ServicePPPoE     ServiceKind = "pppds"
	ServiceWifi      ServiceKind = "wifi"
)

// ZoneRequirementFor returns the zone gate of each service kind (spec I3,
// §4.6). No starter or supervisor in the daemon calls it before enabling a
// service.
func ZoneRequirementFor(kind ServiceKind) ZoneRequirement {
	switch kind {
	case ServiceDHCPv4, ServiceICMPv6RA, ServiceRouteLAN, ServiceWifi:
		return ZoneLanOnly
	case ServiceIfaceIP, ServiceDHCPv6PD, ServiceNAT, ServiceRouteWAN, ServicePPPoE:
		return ZoneWanOrPpp
	default:
		return ZoneAny
	}
}

// ServiceConfig is the common envelope every per-interface service config
// carries (spec §3 "Per-interface service config"); service-specific
// payloads live behind the Payload field, type-asserted by each Starter.
type ServiceConfig struct {
	IfaceName IfaceName   `json:"iface_name"`
	Kind      ServiceKind `json:"kind"`
	Enable    bool        `json:"enable"`
	Payload   any         `json:"payload,omitempty"`
	UpdateAt  float64     `json:"update_at"`
}

func (c *ServiceConfig) GetID() string         { return c.IfaceName + "/" + string(c.Kind) }
func (c *ServiceConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *ServiceConfig) SetUpdateAt(t float64) { c.UpdateAt = t }

// IfaceIPPayload configures how an interface's L3 address is provisioned.
type IfaceIPPayload struct {
	Mode    string   `json:"mode"` // "static" | "dhcp4" | "pppoe" | "dhcp6pd"
	Static  []string `json:"static,omitempty"`
	Gateway string   `json:"gateway,omitempty"`
	PPPoEUser string `json:"pppoe_user,omitempty"`
	PPPoEPass SecureStringLike `json:"pppoe_pass,omitempty"`
}

// SecureStringLike mirrors the JSON masking of the teacher's SecureString
// without importing internal/config (keeps domain dependency-free of
// config). Only MarshalJSON masks; String and GoString are not overridden.
type SecureStringLike string

func (s SecureStringLike) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"(hidden)"`), nil
}

// DHCPv4ServerPayload configures a LAN DHCPv4 lease pool.
type DHCPv4ServerPayload struct {
	Network     string `json:"network"` // e.g. 192.168.5.0/24
	RangeStart  string `json:"range_start"`
	RangeEnd    string `json:"range_end"`
	LeaseTime   int    `json:"lease_time_seconds"`
	GatewayIP   string `json:"gateway_ip"`
	DNS         []string `json:"dns,omitempty"`
	ArpScanSize int    `json:"arp_scan_size,omitempty"`
}

// DHCPv6PDPayload configures the PD client.
type DHCPv6PDPayload struct {
	RequestedPrefixLen int `json:"requested_prefix_len"`
}

// ICMPv6RAPayload configures the RA server.
type ICMPv6RAPayload struct {
	ManagedFlag   bool `json:"managed_flag"`
	OtherConfigFlag bool `json:"other_config_flag"`
}

// NATPayload configures NAT44/NAT66 on a WAN interface.
type NATPayload struct {
	EnableNAT44 bool `json:"enable_nat44"`
	EnableNAT66 bool `json:"enable_nat66"`
}

// MSSClampPayload configures TCP MSS clamping.
type MSSClampPayload struct {
	ClampValue int `json:"clamp_value,omitempty"` // 0 = auto (PMTU-derived)
}

// RouteWanPayload / RouteLanPayload configure route-steering attachment;
// they carry no tunables beyond enable/disable at this layer.
type RouteWanPayload struct{}
type RouteLanPayload struct{}

// FirewallPayload configures the per-interface firewall hook attachment;
// rule contents are pushed into kernel maps independently by the
// Configuration Propagation Pipeline, so this carries no tunables either.
type FirewallPayload struct{}

// WifiPayload configures a wireless interface's SSID/auth.
type WifiPayload struct {
	SSID string           `json:"ssid"`
	PSK  SecureStringLike `json:"psk,omitempty"`
}

// PPPoEPayload configures PPPoE dialing (writes /etc/ppp/peers/<ifname>).
type PPPoEPayload struct {
	Username string           `json:"username"`
	Password SecureStringLike `json:"password"`
}
