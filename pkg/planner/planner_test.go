package planner

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/drvig/updns/pkg/types"
)

func identity(name string, rank int, running, latest string, known bool) types.ComponentIdentity {
	return types.ComponentIdentity{
		Name:          name,
		Rank:          rank,
		RunningDigest: running,
		LatestDigest:  latest,
		LatestKnown:   known,
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		identities []types.ComponentIdentity
		expected   []string
	}{
		{
			name: "all current yields empty plan",
			identities: []types.ComponentIdentity{
				identity("cache", 0, "sha256:aaa", "sha256:aaa", true),
				identity("resolver", 1, "sha256:bbb", "sha256:bbb", true),
				identity("blocker", 2, "sha256:ccc", "sha256:ccc", true),
			},
			expected: nil,
		},
		{
			name: "single outdated component",
			identities: []types.ComponentIdentity{
				identity("cache", 0, "sha256:aaa", "sha256:aa2", true),
				identity("resolver", 1, "sha256:bbb", "sha256:bbb", true),
				identity("blocker", 2, "sha256:ccc", "sha256:ccc", true),
			},
			expected: []string{"cache"},
		},
		{
			name: "all outdated ordered by rank regardless of input order",
			identities: []types.ComponentIdentity{
				identity("blocker", 2, "sha256:ccc", "sha256:cc2", true),
				identity("cache", 0, "sha256:aaa", "sha256:aa2", true),
				identity("resolver", 1, "sha256:bbb", "sha256:bb2", true),
			},
			expected: []string{"cache", "resolver", "blocker"},
		},
		{
			name: "equal rank preserves enumeration order",
			identities: []types.ComponentIdentity{
				identity("resolver-a", 1, "sha256:aaa", "sha256:aa2", true),
				identity("resolver-b", 1, "sha256:bbb", "sha256:bb2", true),
				identity("cache", 0, "sha256:ccc", "sha256:cc2", true),
			},
			expected: []string{"cache", "resolver-a", "resolver-b"},
		},
		{
			name: "unknown latest digest is excluded, never assumed outdated",
			identities: []types.ComponentIdentity{
				identity("cache", 0, "sha256:aaa", "", false),
				identity("resolver", 1, "sha256:bbb", "sha256:bb2", true),
			},
			expected: []string{"resolver"},
		},
		{
			name:       "no identities",
			identities: nil,
			expected:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(tt.identities, zerolog.Nop())
			assert.Equal(t, tt.expected, planNames(plan))
			assert.Equal(t, len(tt.expected) == 0, plan.Empty())
		})
	}
}

func planNames(plan types.UpdatePlan) []string {
	if plan.Empty() {
		return nil
	}
	return plan.Names()
}

// A derived plan must be reproducible: same identities, same plan
func TestPlanDeterministic(t *testing.T) {
	identities := []types.ComponentIdentity{
		identity("blocker", 2, "sha256:c", "sha256:c2", true),
		identity("resolver-a", 1, "sha256:a", "sha256:a2", true),
		identity("resolver-b", 1, "sha256:b", "sha256:b2", true),
		identity("cache", 0, "sha256:d", "sha256:d2", true),
	}

	first := Plan(identities, zerolog.Nop())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Plan(identities, zerolog.Nop()))
	}
}
