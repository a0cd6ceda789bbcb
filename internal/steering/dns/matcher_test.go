// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/flywall/internal/domain"
)

func TestMatchName_Full(t *testing.T) {
	m := domain.DomainConfig{MatchType: domain.MatchFull, Value: "example.com."}
	assert.True(t, matchName(m, "example.com."))
	assert.False(t, matchName(m, "www.example.com."))
}

func TestMatchName_Domain(t *testing.T) {
	m := domain.DomainConfig{MatchType: domain.MatchDomain, Value: "example.com"}
	assert.True(t, matchName(m, "example.com."))
	assert.True(t, matchName(m, "www.example.com."))
	assert.False(t, matchName(m, "notexample.com."))
}

func TestMatchName_Plain(t *testing.T) {
	m := domain.DomainConfig{MatchType: domain.MatchPlain, Value: "ample"}
	assert.True(t, matchName(m, "example.com."))
	assert.False(t, matchName(m, "other.com."))
}

func TestMatchName_Regex(t *testing.T) {
	m := domain.DomainConfig{MatchType: domain.MatchRegex, Value: `^ads\..*\.com\.$`}
	assert.True(t, matchName(m, "ads.tracker.com."))
	assert.False(t, matchName(m, "notads.tracker.com."))
}

func TestMatchName_BadRegex(t *testing.T) {
	m := domain.DomainConfig{MatchType: domain.MatchRegex, Value: "("}
	assert.False(t, matchName(m, "example.com."))
}

func TestRuntimeRedirect_Matches(t *testing.T) {
	rd := runtimeRedirect{
		MatchRules: []domain.DomainConfig{
			{MatchType: domain.MatchDomain, Value: "blocked.test"},
		},
	}
	assert.True(t, rd.matches("sub.blocked.test."))
	assert.False(t, rd.matches("allowed.test."))
}

func TestRuntimeRule_Matches(t *testing.T) {
	r := runtimeRule{
		Sources: []domain.DomainConfig{
			{MatchType: domain.MatchFull, Value: "exact.test."},
		},
	}
	assert.True(t, r.matches("exact.test."))
	assert.False(t, r.matches("other.test."))
}

func TestByIndex_Sort(t *testing.T) {
	rules := []runtimeRule{{Index: 3}, {Index: 1}, {Index: 2}}
	s := byIndex(rules)
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Less(1, 2))
	s.Swap(0, 1)
	assert.Equal(t, 1, rules[0].Index)
}
