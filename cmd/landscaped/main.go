// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command landscaped is the router control-plane daemon: it loads bootstrap
// config, opens the SQLite-backed repository façade, attaches the
// externally-compiled eBPF collection, and wires the Config Services,
// Flow/DNS Steering Core, and the ten per-interface service supervisors to
// the HTTP/WS surface.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cilium/ebpf"
	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/flywall/internal/api"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/configservice"
	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/ebpf/maps"
	"grimm.is/flywall/internal/eventbus"
	"grimm.is/flywall/internal/geo"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/metrics"
	"grimm.is/flywall/internal/services/dhcpv4"
	"grimm.is/flywall/internal/services/dhcpv6pd"
	"grimm.is/flywall/internal/services/firewall"
	"grimm.is/flywall/internal/services/icmpv6ra"
	"grimm.is/flywall/internal/services/ifaceip"
	"grimm.is/flywall/internal/services/mssclamp"
	"grimm.is/flywall/internal/services/nat"
	"grimm.is/flywall/internal/services/routelan"
	"grimm.is/flywall/internal/services/routewan"
	"grimm.is/flywall/internal/services/wifi"
	"grimm.is/flywall/internal/steering/dstmark"
	"grimm.is/flywall/internal/steering/dns"
	"grimm.is/flywall/internal/steering/flowtable"
	"grimm.is/flywall/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL bootstrap config file")
	bpfObject := flag.String("bpf-object", "", "Path to the compiled eBPF object (kernel hooks stay an external collaborator; empty disables steering map attachment)")
	wanIface := flag.String("wan-iface", "wan0", "WAN-side interface whose delegated prefix icmpv6ra advertises on LAN interfaces")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
	}
	log := logging.New(logCfg)

	if err := run(cfg, *bpfObject, *wanIface, log); err != nil {
		log.Error("landscaped exited: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, bpfObjectPath, wanIface string, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	homeDir, err := cfg.ExpandHomeDir()
	if err != nil {
		return fmt.Errorf("expand home dir: %w", err)
	}
	if err := os.MkdirAll(homeDir, 0o700); err != nil {
		return fmt.Errorf("create home dir: %w", err)
	}

	dsn := cfg.DatabaseDSN
	if !filepath.IsAbs(dsn) {
		dsn = filepath.Join(homeDir, dsn)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bus := eventbus.New(cfg.Flow.IfaceEventBacklog)
	geoCache := geo.New()

	mgr, err := attachEBPF(bpfObjectPath)
	if err != nil {
		return fmt.Errorf("attach eBPF collection: %w", err)
	}

	repos, err := openRepositories(ctx, db)
	if err != nil {
		return fmt.Errorf("open repositories: %w", err)
	}

	dnsRuleSvc := configservice.NewDNSRuleService(repos.dnsRules, bus)
	dnsRedirectSvc := configservice.NewDNSRedirectService(repos.dnsRedirects, bus)
	dnsUpstreamSvc := configservice.NewDNSUpstreamService(repos.dnsUpstreams, bus)
	wanIPRuleSvc := configservice.NewWanIpRuleService(repos.wanIPRules, bus)
	firewallRuleSvc := configservice.NewFirewallRuleService(repos.firewallRules, bus)
	blacklistSvc := configservice.NewFirewallBlacklistService(repos.blacklists, bus)
	staticNATSvc := configservice.NewStaticNatMappingService(repos.staticNAT)
	deviceSvc := configservice.NewEnrolledDeviceService(repos.devices)
	flowRuleSvc := configservice.NewFlowRuleService(repos.flows, bus)
	geoSourceSvc := configservice.NewGeoSourceService(repos.geoSources, bus)

	flowMap, dstMarkMap, dnsMarkMap, err := steeringMapWriters(mgr)
	if err != nil {
		return fmt.Errorf("bind steering maps: %w", err)
	}

	flowTable := flowtable.New(flowMap, log)
	dstTable := dstmark.New(dstMarkMap, geoCache, log)
	runConfigPropagation(ctx, bus, flowTable, flowRuleSvc, dstTable, wanIPRuleSvc, log)

	dnsManager := dns.NewManager(repos.dnsRules, repos.dnsRedirects, repos.dnsUpstreams, repos.flows, geoCache, dnsMarkMap, bus, log)
	if err := dnsManager.RebuildAll(ctx); err != nil {
		log.Warn("initial dns handler build: %v", err)
	}

	metricsReg := metrics.New()
	metricsReg.MustRegister(prometheus.DefaultRegisterer)
	dnsManager.SetRecorder(metricsReg)

	prefixes := dhcpv6pd.NewIAPrefixMap()

	ifaceIPMgr := supervisor.New[*ifaceip.Starter, *domain.IfaceIPPayload](ifaceip.New(log), bus, log)
	dhcpv4Mgr := supervisor.New[*dhcpv4.Starter, *domain.DHCPv4ServerPayload](
		dhcpv4.New(log, enrolledDeviceLister(deviceSvc)), bus, log)
	dhcpv6pdMgr := supervisor.New[*dhcpv6pd.Starter, *domain.DHCPv6PDPayload](dhcpv6pd.New(log, prefixes), bus, log)
	icmpv6raMgr := supervisor.New[*icmpv6ra.Starter, *domain.ICMPv6RAPayload](
		icmpv6ra.New(log, prefixes, wanIface), bus, log)
	natMgr := supervisor.New[*nat.Starter, *domain.NATPayload](nat.New(log, mgr), bus, log)
	mssclampMgr := supervisor.New[*mssclamp.Starter, *domain.MSSClampPayload](mssclamp.New(log, mgr), bus, log)
	firewallMgr := supervisor.New[*firewall.Starter, domain.FirewallPayload](firewall.New(log, mgr), bus, log)
	routewanMgr := supervisor.New[*routewan.Starter, domain.RouteWanPayload](routewan.New(log, mgr), bus, log)
	routelanMgr := supervisor.New[*routelan.Starter, domain.RouteLanPayload](routelan.New(log, mgr), bus, log)
	wifiMgr := supervisor.New[*wifi.Starter, *domain.WifiPayload](wifi.New(log), bus, log)

	ops := map[domain.ServiceKind]api.ServiceOps{
		domain.ServiceIfaceIP:  pointerOps(ifaceIPMgr),
		domain.ServiceDHCPv4:   pointerOps(dhcpv4Mgr),
		domain.ServiceDHCPv6PD: pointerOps(dhcpv6pdMgr),
		domain.ServiceICMPv6RA: pointerOps(icmpv6raMgr),
		domain.ServiceNAT:      pointerOps(natMgr),
		domain.ServiceMSSClamp: pointerOps(mssclampMgr),
		domain.ServiceFirewall: valueOps(firewallMgr),
		domain.ServiceRouteWAN: valueOps(routewanMgr),
		domain.ServiceRouteLAN: valueOps(routelanMgr),
		domain.ServiceWifi:     pointerOps(wifiMgr),
	}

	deps := api.Deps{
		DNSRules:      dnsRuleSvc,
		DNSRedirects:  dnsRedirectSvc,
		DNSUpstreams:  dnsUpstreamSvc,
		WanIPRules:    wanIPRuleSvc,
		FirewallRules: firewallRuleSvc,
		Blacklists:    blacklistSvc,
		StaticNAT:     staticNATSvc,
		Devices:       deviceSvc,
		FlowRules:     flowRuleSvc,
		GeoSources:    geoSourceSvc,

		ServiceConfigs: repos.serviceConfigs,
		ServiceOps:     ops,

		DNS: dnsManager,
		Log: log,
	}

	server := api.NewServer(deps)
	httpServer := api.NewHTTPServer(cfg.HTTPListen, server.Handler(), api.DefaultServerConfig())

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", cfg.HTTPListen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("http server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: %v", err)
	}

	for _, mgr := range []interface{ Shutdown() }{
		ifaceIPMgr, dhcpv4Mgr, dhcpv6pdMgr, icmpv6raMgr,
		natMgr, mssclampMgr, firewallMgr, routewanMgr,
		routelanMgr, wifiMgr,
	} {
		mgr.Shutdown()
	}
	dnsManager.Shutdown()

	return nil
}

// runConfigPropagation performs the initial compile of both steering
// tables and keeps them in sync with their Config Services' RouteEvent /
// DstIpEvent publications (spec §4.7's propagation pipeline).
func runConfigPropagation(
	ctx context.Context,
	bus *eventbus.Bus,
	flowTable *flowtable.Table,
	flowRuleSvc *configservice.ConfigService[domain.ConfigID, *domain.FlowConfig],
	dstTable *dstmark.Table,
	wanIPRuleSvc *configservice.ConfigService[domain.ConfigID, *domain.WanIpRuleConfig],
	log *logging.Logger,
) {
	sublog := log.With("config.propagation")

	compileFlows := func() {
		list, err := flowRuleSvc.List(ctx)
		if err != nil {
			sublog.Warn("list flow rules: %v", err)
			return
		}
		if err := flowTable.Compile(ctx, list); err != nil {
			sublog.Warn("compile flow table: %v", err)
		}
	}
	compileDst := func() {
		list, err := wanIPRuleSvc.List(ctx)
		if err != nil {
			sublog.Warn("list wan ip rules: %v", err)
			return
		}
		if err := dstTable.Compile(ctx, list); err != nil {
			sublog.Warn("compile dst mark table: %v", err)
		}
	}

	compileFlows()
	compileDst()

	routeCh, _ := bus.SubscribeRoute()
	dstCh, _ := bus.SubscribeDstIp()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-routeCh:
				if !ok {
					return
				}
				compileFlows()
			case _, ok := <-dstCh:
				if !ok {
					return
				}
				compileDst()
			}
		}
	}()
}

func pointerOps[S supervisor.Starter[*C], C any](mgr *supervisor.ServiceManager[S, *C]) api.ServiceOps {
	return api.ServiceOps{
		Update: func(ctx context.Context, iface string, raw json.RawMessage, enable bool) error {
			cfg := new(C)
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, cfg); err != nil {
					return err
				}
			}
			return mgr.UpdateService(ctx, iface, cfg, enable)
		},
		Stop:   func(iface string) { mgr.StopService(iface) },
		Status: mgr.GetAllStatus,
	}
}

func valueOps[S supervisor.Starter[C], C any](mgr *supervisor.ServiceManager[S, C]) api.ServiceOps {
	return api.ServiceOps{
		Update: func(ctx context.Context, iface string, raw json.RawMessage, enable bool) error {
			var cfg C
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return err
				}
			}
			return mgr.UpdateService(ctx, iface, cfg, enable)
		},
		Stop:   func(iface string) { mgr.StopService(iface) },
		Status: mgr.GetAllStatus,
	}
}

func enrolledDeviceLister(svc *configservice.ConfigService[domain.ConfigID, *domain.EnrolledDevice]) dhcpv4.EnrolledDeviceLister {
	return func() []*domain.EnrolledDevice {
		list, err := svc.List(context.Background())
		if err != nil {
			return nil
		}
		return list
	}
}

// attachEBPF loads the externally-compiled eBPF object (spec §1's
// "bytecode remains an external collaborator") and registers every map the
// collection exposes. An empty path yields a nil Manager: the steering
// core falls back to no-op writers (see steeringMapWriters) so the REST
// API and config propagation pipeline stay usable, though per-interface
// services that program the datapath directly (nat, mssclamp, firewall,
// routewan, routelan) will fail once actually started against an
// interface.
func attachEBPF(objPath string) (*maps.Manager, error) {
	if objPath == "" {
		return nil, nil
	}
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("load collection spec: %w", err)
	}
	collection, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("instantiate collection: %w", err)
	}
	mgr := maps.NewManager(collection)
	for name, m := range collection.Maps {
		if err := mgr.RegisterMap(name, m); err != nil {
			return nil, fmt.Errorf("register map %s: %w", name, err)
		}
	}
	return mgr, nil
}

// steeringMapWriters binds the Flow/DNS Steering Core to real kernel maps
// when an eBPF object was attached, or to in-memory no-ops otherwise, so
// the control plane still runs (and is testable over HTTP) without
// root/kernel BTF support.
func steeringMapWriters(mgr *maps.Manager) (flowtable.MapWriter, dstmark.MapWriter, dns.MarkWriter, error) {
	if mgr == nil {
		return noopWriter{}, noopWriter{}, noopWriter{}, nil
	}
	flowMap, err := mgr.NewFlowEntryMap("flow_mac_map", "flow_prefix_map")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("flow entry map: %w", err)
	}
	dstMap, err := mgr.NewDstMarkMap("dst_mark_map")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dst mark map: %w", err)
	}
	dnsMap, err := mgr.NewDnsMarkMap("dns_mark_map")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dns mark map: %w", err)
	}
	return flowMap, dstMap, dnsMap, nil
}

// noopWriter discards steering-core writes when no eBPF object is
// attached. It satisfies flowtable.MapWriter, dstmark.MapWriter, and
// dns.MarkWriter simultaneously since none of their signatures collide.
type noopWriter struct{}

func (noopWriter) SetMac(mac string, flowID domain.FlowID) error        { return nil }
func (noopWriter) DeleteMac(mac string) error                           { return nil }
func (noopWriter) SetPrefix(cidr string, flowID domain.FlowID) error    { return nil }
func (noopWriter) DeletePrefix(cidr string) error                       { return nil }
func (noopWriter) ReplaceAll(entries []dstmark.Entry) error             { return nil }
func (noopWriter) SetMark(ip net.IP, mark uint32, priority uint16) error { return nil }
func (noopWriter) DeleteMark(ip net.IP) error                           { return nil }
