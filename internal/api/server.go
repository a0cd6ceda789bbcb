// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/flywall/internal/configservice"
	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/repository"
	steeringdns "grimm.is/flywall/internal/steering/dns"
)

// ServerConfig holds the hardened HTTP timeouts applied to every listener,
// matching the teacher's internal/api.DefaultServerConfig mitigation
// against slowloris / unbounded body reads (OWASP A05:2021).
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig returns the teacher's hardened defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// Deps bundles everything the HTTP surface delegates into. It is built once
// in cmd/landscaped and handed to NewServer.
type Deps struct {
	DNSRules      *configservice.ConfigService[domain.ConfigID, *domain.DNSRuleConfig]
	DNSRedirects  *configservice.ConfigService[domain.ConfigID, *domain.DNSRedirectRule]
	DNSUpstreams  *configservice.ConfigService[domain.ConfigID, *domain.DnsUpstreamConfig]
	WanIPRules    *configservice.ConfigService[domain.ConfigID, *domain.WanIpRuleConfig]
	FirewallRules *configservice.ConfigService[domain.ConfigID, *domain.FirewallRuleConfig]
	Blacklists    *configservice.ConfigService[domain.ConfigID, *domain.FirewallBlacklistConfig]
	StaticNAT     *configservice.ConfigService[domain.ConfigID, *domain.StaticNatMapping]
	Devices       *configservice.ConfigService[domain.ConfigID, *domain.EnrolledDevice]
	FlowRules     *configservice.ConfigService[domain.ConfigID, *domain.FlowConfig]
	GeoSources    *configservice.ConfigService[domain.ConfigID, *domain.GeoSourceConfig]

	ServiceConfigs *repository.Repository[string, *domain.ServiceConfig]
	ServiceOps     map[domain.ServiceKind]ServiceOps

	DNS *steeringdns.Manager
	Log *logging.Logger
}

// Server wires Deps into a gorilla/mux router. It carries no state of its
// own beyond Deps; every handler is a thin delegation, per SPEC_FULL.md's
// HTTP/WS surface section.
type Server struct {
	deps   Deps
	router *mux.Router
}

func parseConfigID(s string) (domain.ConfigID, bool) {
	id, err := domain.ParseConfigID(s)
	return id, err == nil
}

// NewServer builds the full route tree.
func NewServer(deps Deps) *Server {
	router := mux.NewRouter()
	s := &Server{deps: deps, router: router}

	mountConfigCRUD(router.PathPrefix("/dns/rules").Subrouter(), deps.DNSRules,
		parseConfigID, func() *domain.DNSRuleConfig { return &domain.DNSRuleConfig{} })
	mountConfigCRUD(router.PathPrefix("/dns/redirects").Subrouter(), deps.DNSRedirects,
		parseConfigID, func() *domain.DNSRedirectRule { return &domain.DNSRedirectRule{} })
	mountConfigCRUD(router.PathPrefix("/dns/upstreams").Subrouter(), deps.DNSUpstreams,
		parseConfigID, func() *domain.DnsUpstreamConfig { return &domain.DnsUpstreamConfig{} })
	mountConfigCRUD(router.PathPrefix("/dst_ip/rules").Subrouter(), deps.WanIPRules,
		parseConfigID, func() *domain.WanIpRuleConfig { return &domain.WanIpRuleConfig{} })
	mountConfigCRUD(router.PathPrefix("/firewall/rules").Subrouter(), deps.FirewallRules,
		parseConfigID, func() *domain.FirewallRuleConfig { return &domain.FirewallRuleConfig{} })
	mountConfigCRUD(router.PathPrefix("/firewall/blacklists").Subrouter(), deps.Blacklists,
		parseConfigID, func() *domain.FirewallBlacklistConfig { return &domain.FirewallBlacklistConfig{} })
	mountConfigCRUD(router.PathPrefix("/firewall/static_nat").Subrouter(), deps.StaticNAT,
		parseConfigID, func() *domain.StaticNatMapping { return &domain.StaticNatMapping{} })
	mountConfigCRUD(router.PathPrefix("/devices").Subrouter(), deps.Devices,
		parseConfigID, func() *domain.EnrolledDevice { return &domain.EnrolledDevice{} })
	mountConfigCRUD(router.PathPrefix("/flows").Subrouter(), deps.FlowRules,
		parseConfigID, func() *domain.FlowConfig { return &domain.FlowConfig{} })
	mountConfigCRUD(router.PathPrefix("/geo/sources").Subrouter(), deps.GeoSources,
		parseConfigID, func() *domain.GeoSourceConfig { return &domain.GeoSourceConfig{} })

	(&dnsHandlers{manager: deps.DNS}).registerRoutes(router.PathPrefix("/dns").Subrouter())
	(&serviceHandlers{ops: deps.ServiceOps}).registerRoutes(router.PathPrefix("/net_dev/service").Subrouter())
	(&netdevHandlers{}).registerRoutes(router.PathPrefix("/net_dev").Subrouter())
	router.HandleFunc("/net_dev", s.listServiceConfigs).Methods(http.MethodGet)

	newWSHandlers(deps.Log).registerRoutes(router)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	return s
}

func (s *Server) listServiceConfigs(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ServiceConfigs.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler returns the root http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// NewHTTPServer wraps handler with cfg's hardened timeouts, bound to addr.
func NewHTTPServer(addr string, handler http.Handler, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
