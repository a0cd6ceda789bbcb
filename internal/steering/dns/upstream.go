// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
)

// resolveTimeout is the per-query upstream timeout (spec §5: "Resolver
// queries use a per-query timeout (default 3s)").
const resolveTimeout = 3 * time.Second

// exchangeUpstream issues r against one resolved upstream per spec §4.5
// step 3, using the transport its Mode selects, optionally pinning the
// local source address via bind. QUIC (DoQ) has no supporting library in
// the retrieved example pack (miekg/dns exposes UDP/TCP/DoT/DoH only, same
// as the teacher's own dns.Client usage) so it fails with KindInternal
// rather than silently falling back to plaintext.
func exchangeUpstream(q *dns.Msg, up domain.DnsUpstreamConfig, bind *domain.BindConfig) (*dns.Msg, error) {
	if len(up.IPs) == 0 && up.Mode != domain.UpstreamHTTPS {
		return nil, errors.Errorf(errors.KindInternal, "dns_upstream.no_ips")
	}

	c := new(dns.Client)
	c.Timeout = resolveTimeout

	switch up.Mode {
	case domain.UpstreamQUIC:
		return nil, errors.Errorf(errors.KindInternal, "dns_upstream.unsupported_transport: quic")

	case domain.UpstreamTLS:
		c.Net = "tcp-tls"
		c.TLSConfig = &tls.Config{ServerName: up.Domain, MinVersion: tls.VersionTLS12}
		c.Dialer = localDialer("tcp", bind)
		addr := withPort(up.IPs[0], up.Port, 853)
		resp, _, err := c.Exchange(q, addr)
		return resp, err

	case domain.UpstreamHTTPS:
		c.Net = "https"
		c.Dialer = localDialer("tcp", bind)
		addr := up.Endpoint
		if addr == "" {
			addr = up.Domain
		}
		resp, _, err := c.Exchange(q, addr)
		return resp, err

	default: // Plaintext
		c.Net = "udp"
		c.Dialer = localDialer("udp", bind)
		addr := withPort(up.IPs[0], up.Port, 53)
		resp, _, err := c.Exchange(q, addr)
		return resp, err
	}
}

// localDialer pins the local source address for outgoing resolver
// connections, per the rule's optional BindConfig (spec §4.5 step 3:
// "with the rule's optional bind address").
func localDialer(network string, bind *domain.BindConfig) *net.Dialer {
	if bind == nil || (bind.V4 == "" && bind.V6 == "") {
		return nil
	}
	local := bind.V4
	if local == "" {
		local = bind.V6
	}
	ip := net.ParseIP(local)
	if ip == nil {
		return nil
	}
	if network == "tcp" {
		return &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
	}
	return &net.Dialer{LocalAddr: &net.UDPAddr{IP: ip}}
}

func withPort(host string, port uint16, def uint16) string {
	if port == 0 {
		port = def
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]" // IPv6 literal
	}
	return host + ":" + strconv.Itoa(int(port))
}
