// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/repository"
)

// repositories bundles one Repository per entity kind, all sharing db's
// connection pool (spec §4.1).
type repositories struct {
	dnsRules       *repository.Repository[domain.ConfigID, *domain.DNSRuleConfig]
	dnsRedirects   *repository.Repository[domain.ConfigID, *domain.DNSRedirectRule]
	dnsUpstreams   *repository.Repository[domain.ConfigID, *domain.DnsUpstreamConfig]
	wanIPRules     *repository.Repository[domain.ConfigID, *domain.WanIpRuleConfig]
	firewallRules  *repository.Repository[domain.ConfigID, *domain.FirewallRuleConfig]
	blacklists     *repository.Repository[domain.ConfigID, *domain.FirewallBlacklistConfig]
	staticNAT      *repository.Repository[domain.ConfigID, *domain.StaticNatMapping]
	devices        *repository.Repository[domain.ConfigID, *domain.EnrolledDevice]
	flows          *repository.Repository[domain.ConfigID, *domain.FlowConfig]
	geoSources     *repository.Repository[domain.ConfigID, *domain.GeoSourceConfig]
	serviceConfigs *repository.Repository[string, *domain.ServiceConfig]
}

func wallClock() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func openRepositories(ctx context.Context, db *sql.DB) (*repositories, error) {
	var r repositories
	var err error

	if r.dnsRules, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.DNSRuleConfig]{
		DB: db, Table: "dns_rules", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.DNSRuleConfig { return &domain.DNSRuleConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("dns_rules: %w", err)
	}

	if r.dnsRedirects, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.DNSRedirectRule]{
		DB: db, Table: "dns_redirects", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.DNSRedirectRule { return &domain.DNSRedirectRule{} },
	}); err != nil {
		return nil, fmt.Errorf("dns_redirects: %w", err)
	}

	if r.dnsUpstreams, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.DnsUpstreamConfig]{
		DB: db, Table: "dns_upstreams", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.DnsUpstreamConfig { return &domain.DnsUpstreamConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("dns_upstreams: %w", err)
	}

	if r.wanIPRules, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.WanIpRuleConfig]{
		DB: db, Table: "wan_ip_rules", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.WanIpRuleConfig { return &domain.WanIpRuleConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("wan_ip_rules: %w", err)
	}

	if r.firewallRules, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.FirewallRuleConfig]{
		DB: db, Table: "firewall_rules", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.FirewallRuleConfig { return &domain.FirewallRuleConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("firewall_rules: %w", err)
	}

	if r.blacklists, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.FirewallBlacklistConfig]{
		DB: db, Table: "firewall_blacklists", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.FirewallBlacklistConfig { return &domain.FirewallBlacklistConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("firewall_blacklists: %w", err)
	}

	if r.staticNAT, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.StaticNatMapping]{
		DB: db, Table: "static_nat", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.StaticNatMapping { return &domain.StaticNatMapping{} },
	}); err != nil {
		return nil, fmt.Errorf("static_nat: %w", err)
	}

	if r.devices, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.EnrolledDevice]{
		DB: db, Table: "devices", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.EnrolledDevice { return &domain.EnrolledDevice{} },
	}); err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}

	if r.flows, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.FlowConfig]{
		DB: db, Table: "flow_rules", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.FlowConfig { return &domain.FlowConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("flow_rules: %w", err)
	}

	if r.geoSources, err = repository.New(ctx, repository.Options[domain.ConfigID, *domain.GeoSourceConfig]{
		DB: db, Table: "geo_sources", Clock: wallClock, IDToString: repository.UUIDIDToString,
		NewZero: func() *domain.GeoSourceConfig { return &domain.GeoSourceConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("geo_sources: %w", err)
	}

	if r.serviceConfigs, err = repository.New(ctx, repository.Options[string, *domain.ServiceConfig]{
		DB: db, Table: "service_configs", Clock: wallClock, IDToString: repository.StringIDToString,
		NewZero: func() *domain.ServiceConfig { return &domain.ServiceConfig{} },
	}); err != nil {
		return nil, fmt.Errorf("service_configs: %w", err)
	}

	return &r, nil
}
