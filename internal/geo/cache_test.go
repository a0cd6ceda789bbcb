// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
)

func writeSiteFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "geosite.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCache_LoadSource_Geosite(t *testing.T) {
	path := writeSiteFile(t, ""+
		"cn domain:qq.com\n"+
		"cn full:example.cn\n"+
		"# comment line\n"+
		"\n"+
		"ads plain:doubleclick\n",
	)

	c := New()
	defer c.Close()

	src := &domain.GeoSourceConfig{Name: "geosite", IsSite: true, Location: path}
	require.NoError(t, c.LoadSource(src))

	cnDomains, err := c.ResolveDomains(domain.GeoKey{Name: "geosite", Key: "cn"})
	require.NoError(t, err)
	require.Len(t, cnDomains, 2)
	assert.Equal(t, domain.MatchDomain, cnDomains[0].MatchType)
	assert.Equal(t, "qq.com", cnDomains[0].Value)
	assert.Equal(t, domain.MatchFull, cnDomains[1].MatchType)

	adsDomains, err := c.ResolveDomains(domain.GeoKey{Name: "geosite", Key: "ads"})
	require.NoError(t, err)
	require.Len(t, adsDomains, 1)
	assert.Equal(t, domain.MatchPlain, adsDomains[0].MatchType)
}

func TestCache_ResolveDomains_UnknownKey(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := c.ResolveDomains(domain.GeoKey{Name: "geosite", Key: "missing"})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestCache_ResolveCIDRs_UnknownSource(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := c.ResolveCIDRs(domain.GeoKey{Name: "geoip", Key: "US"})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestCache_LookupCountry_UnknownSource(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := c.LookupCountry("geoip", "8.8.8.8")
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}
