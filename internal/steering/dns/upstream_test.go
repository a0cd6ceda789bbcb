// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
)

func TestWithPort_DefaultsAndIPv6Bracketing(t *testing.T) {
	assert.Equal(t, "1.2.3.4:53", withPort("1.2.3.4", 0, 53))
	assert.Equal(t, "1.2.3.4:5353", withPort("1.2.3.4", 5353, 53))
	assert.Equal(t, "[::1]:853", withPort("::1", 0, 853))
}

func TestLocalDialer_Empty(t *testing.T) {
	assert.Nil(t, localDialer("udp", nil))
	assert.Nil(t, localDialer("udp", &domain.BindConfig{}))
}

func TestLocalDialer_TCP(t *testing.T) {
	d := localDialer("tcp", &domain.BindConfig{V4: "10.0.0.1"})
	require.NotNil(t, d)
	addr, ok := d.LocalAddr.(*net.TCPAddr)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", addr.IP.String())
}

func TestLocalDialer_UDPFallsBackToV6(t *testing.T) {
	d := localDialer("udp", &domain.BindConfig{V6: "fe80::1"})
	require.NotNil(t, d)
	addr, ok := d.LocalAddr.(*net.UDPAddr)
	require.True(t, ok)
	assert.Equal(t, "fe80::1", addr.IP.String())
}

func TestExchangeUpstream_QUICUnsupported(t *testing.T) {
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)

	_, err := exchangeUpstream(q, domain.DnsUpstreamConfig{Mode: domain.UpstreamQUIC, IPs: []string{"9.9.9.9"}}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindInternal, errors.GetKind(err))
}

func TestExchangeUpstream_NoIPs(t *testing.T) {
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)

	_, err := exchangeUpstream(q, domain.DnsUpstreamConfig{Mode: domain.UpstreamPlaintext}, nil)
	require.Error(t, err)
}
