// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package domain

// UpstreamMode is the transport a DNS upstream speaks.
type UpstreamMode int

const (
	UpstreamPlaintext UpstreamMode = iota
	UpstreamTLS
	UpstreamHTTPS
	UpstreamQUIC
)

// DnsUpstreamConfig is a resolver endpoint configuration (spec §3).
type DnsUpstreamConfig struct {
	ID                ConfigID     `json:"id"`
	Mode              UpstreamMode `json:"mode"`
	Domain            string       `json:"domain,omitempty"`   // required for Tls/Https/Quic
	Endpoint          string       `json:"endpoint,omitempty"` // optional DoH path override
	IPs               []string     `json:"ips"`
	Port              uint16       `json:"port,omitempty"`
	EnableIPValidation bool        `json:"enable_ip_validation"`
	UpdateAt          float64      `json:"update_at"`
}

func (c *DnsUpstreamConfig) GetID() ConfigID       { return c.ID }
func (c *DnsUpstreamConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *DnsUpstreamConfig) SetUpdateAt(t float64) { c.UpdateAt = t }

// FilterResult narrows which record types a rule's answers may contain.
type FilterResult int

const (
	FilterUnfilter FilterResult = iota
	FilterOnlyIPv4
	FilterOnlyIPv6
)

// MatchType selects how a DomainConfig's Value is compared against a query
// name (spec §3, §4.5).
type MatchType int

const (
	MatchPlain MatchType = iota
	MatchRegex
	MatchDomain // suffix-label match
	MatchFull
)

// DomainConfig is one inline domain matcher.
type DomainConfig struct {
	MatchType MatchType `json:"match_type"`
	Value     string    `json:"value"`
}

// GeoKey references a named entry in a geo database, with optional
// attribute filters and an invert flag (GLOSSARY "Geo key").
type GeoKey struct {
	Name   string            `json:"name"` // "geosite" or "geoip"
	Key    string             `json:"key"`  // e.g. "CN"
	Attrs  map[string]string  `json:"attrs,omitempty"`
	Invert bool               `json:"invert"`
}

// RuleSourceKind selects whether a RuleSource is a geo reference or an
// inline domain matcher.
type RuleSourceKind int

const (
	SourceGeoKey RuleSourceKind = iota
	SourceConfig
)

// RuleSource is one matcher contributing to a DNS rule's or redirect's
// match set.
type RuleSource struct {
	Kind   RuleSourceKind `json:"kind"`
	GeoKey *GeoKey        `json:"geo_key,omitempty"`
	Config *DomainConfig  `json:"config,omitempty"`
}

// BindConfig optionally pins the source address used for upstream queries.
type BindConfig struct {
	V4 string `json:"v4,omitempty"`
	V6 string `json:"v6,omitempty"`
}

// FlowMark is stamped onto matching A/AAAA answers and pushed into the
// dns-mark kernel map (spec §3, §4.5 step 6).
type FlowMark struct {
	Mark     uint32 `json:"mark"`
	Priority uint16 `json:"priority"`
	Insert   bool   `json:"insert"` // need_insert_in_ebpf_map()
}

// NeedInsertInEBPFMap reports whether resolved answers under this mark
// should be pushed to the dns-mark kernel map.
func (m FlowMark) NeedInsertInEBPFMap() bool { return m.Insert }

// DNSRuleConfig is one priority-ordered DNS steering rule (spec §3, §4.5).
type DNSRuleConfig struct {
	ID         ConfigID     `json:"id"`
	Index      int          `json:"index"` // ascending = higher priority
	Enable     bool         `json:"enable"`
	FlowID     FlowID       `json:"flow_id"`
	Filter     FilterResult `json:"filter"`
	UpstreamID ConfigID     `json:"upstream_id"`
	Bind       *BindConfig  `json:"bind_config,omitempty"`
	Mark       FlowMark     `json:"mark"`
	Source     []RuleSource `json:"source"`
	UpdateAt   float64      `json:"update_at"`
}

func (c *DNSRuleConfig) GetID() ConfigID       { return c.ID }
func (c *DNSRuleConfig) GetUpdateAt() float64  { return c.UpdateAt }
func (c *DNSRuleConfig) SetUpdateAt(t float64) { c.UpdateAt = t }
func (c *DNSRuleConfig) MatchesFlow(id FlowID) bool { return c.FlowID == id }

// DNSRedirectRule synthesizes answers for matching queries (spec §3, §4.5
// step 1).
type DNSRedirectRule struct {
	ID          ConfigID     `json:"id"`
	Enable      bool         `json:"enable"`
	MatchRules  []RuleSource `json:"match_rules"`
	ResultInfo  []string     `json:"result_info"` // IPs to synthesize
	ApplyFlows  []FlowID     `json:"apply_flows"` // empty => all flows
	UpdateAt    float64      `json:"update_at"`
}

func (c *DNSRedirectRule) GetID() ConfigID       { return c.ID }
func (c *DNSRedirectRule) GetUpdateAt() float64  { return c.UpdateAt }
func (c *DNSRedirectRule) SetUpdateAt(t float64) { c.UpdateAt = t }

// MatchesFlow reports whether this redirect applies to flow id: it does if
// ApplyFlows is empty (all flows) or explicitly contains id.
func (c *DNSRedirectRule) MatchesFlow(id FlowID) bool {
	if len(c.ApplyFlows) == 0 {
		return true
	}
	for _, f := range c.ApplyFlows {
		if f == id {
			return true
		}
	}
	return false
}
