// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"regexp"
	"strings"

	"grimm.is/flywall/internal/domain"
)

// matchName reports whether name (a lowercased, dot-terminated FQDN) matches
// one domain matcher, per spec §4.5 step 2's four match kinds.
func matchName(m domain.DomainConfig, name string) bool {
	switch m.MatchType {
	case domain.MatchFull:
		return strings.EqualFold(strings.TrimSuffix(name, "."), strings.TrimSuffix(m.Value, "."))
	case domain.MatchDomain:
		target := strings.ToLower(strings.TrimSuffix(m.Value, "."))
		n := strings.ToLower(strings.TrimSuffix(name, "."))
		if n == target {
			return true
		}
		return strings.HasSuffix(n, "."+target)
	case domain.MatchPlain:
		return strings.Contains(strings.ToLower(name), strings.ToLower(m.Value))
	case domain.MatchRegex:
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	default:
		return false
	}
}

// runtimeRedirect is a DNSRedirectRule with its match set already resolved
// (GeoKeys expanded to literal DomainConfigs).
type runtimeRedirect struct {
	ID         domain.ConfigID
	MatchRules []domain.DomainConfig
	ResultInfo []string
}

func (r runtimeRedirect) matches(name string) bool {
	for _, m := range r.MatchRules {
		if matchName(m, name) {
			return true
		}
	}
	return false
}

// runtimeRule is a DNSRuleConfig with its GeoKey sources expanded and its
// upstream pre-resolved (spec §4.5: "Per-flow handler ... converted from
// DNSRuleConfig by (a) expanding RuleSource::GeoKey ... (b) dereferencing
// upstream_id").
type runtimeRule struct {
	ID       domain.ConfigID
	Index    int
	Filter   domain.FilterResult
	Bind     *domain.BindConfig
	Mark     domain.FlowMark
	Sources  []domain.DomainConfig
	Upstream domain.DnsUpstreamConfig
}

func (r runtimeRule) matches(name string) bool {
	for _, m := range r.Sources {
		if matchName(m, name) {
			return true
		}
	}
	return false
}

// byIndex sorts runtime rules ascending by (Index, ID) (spec §4.5 step 2:
// "walk rules by index ascending; first match wins"); equal indexes are
// ordered by the ID's string form.
type byIndex []runtimeRule

func (s byIndex) Len() int { return len(s) }
func (s byIndex) Less(i, j int) bool {
	if s[i].Index != s[j].Index {
		return s[i].Index < s[j].Index
	}
	return s[i].ID.String() < s[j].ID.String()
}
func (s byIndex) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
