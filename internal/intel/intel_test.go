package intel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeScoreBaselineForFreshDeployer(t *testing.T) {
	now := time.Now()
	p := DeployerProfile{FirstSeenAt: now, LastSeenAt: now}
	assert.Equal(t, 50.0, computeScore(p, now))
}

func TestComputeScoreRewardsLaunchCountAndLifespanUpToCaps(t *testing.T) {
	now := time.Now()
	p := DeployerProfile{
		TotalLaunches: 20, // 20*1.5 = 30, capped at 15
		FirstSeenAt:   now.Add(-100 * time.Hour), // 100*2 = 200, capped at 20
		LastSeenAt:    now,
	}
	assert.Equal(t, 85.0, computeScore(p, now)) // 50 + 15 + 20
}

func TestComputeScorePenalizesRugRateAndConnectedWallets(t *testing.T) {
	now := time.Now()
	p := DeployerProfile{
		FirstSeenAt:      now,
		LastSeenAt:       now,
		RugRate:          1.0, // -40
		ConnectedWallets: map[string]bool{"a": true, "b": true}, // -6
	}
	assert.Equal(t, 4.0, computeScore(p, now)) // 50 - 40 - 6
}

func TestComputeScorePenalizesDormancyBeyondSevenDays(t *testing.T) {
	now := time.Now()
	p := DeployerProfile{
		FirstSeenAt: now.Add(-30 * 24 * time.Hour),
		LastSeenAt:  now.Add(-17 * 24 * time.Hour), // 10 days past the 7-day grace period
	}
	// 50 + launches(0) + lifespan(cap 20) - dormancy(min(10, 10*0.5)=5)
	assert.Equal(t, 65.0, computeScore(p, now))
}

func TestComputeScoreClampsToZeroAndPeaksAtEightyFive(t *testing.T) {
	now := time.Now()
	bad := DeployerProfile{FirstSeenAt: now, LastSeenAt: now, RugRate: 1.0,
		ConnectedWallets: map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true}}
	assert.Equal(t, 0.0, computeScore(bad, now))

	// The formula's maximum is 50 + 15 + 20 = 85, so the upper clamp at
	// 100 is never reached.
	good := DeployerProfile{
		TotalLaunches: 100,
		FirstSeenAt:   now.Add(-10000 * time.Hour),
		LastSeenAt:    now,
	}
	assert.Equal(t, 85.0, computeScore(good, now))
}

func TestMatchConditionOperators(t *testing.T) {
	assert.True(t, matchCondition(Condition{Operator: OpGreaterThan, Value: 10}, 11))
	assert.False(t, matchCondition(Condition{Operator: OpGreaterThan, Value: 10}, 10))

	assert.True(t, matchCondition(Condition{Operator: OpLessThan, Value: 10}, 9))
	assert.False(t, matchCondition(Condition{Operator: OpLessThan, Value: 10}, 10))

	assert.True(t, matchCondition(Condition{Operator: OpEqual, Value: 10}, 10))
	assert.False(t, matchCondition(Condition{Operator: OpEqual, Value: 10}, 10.1))

	assert.True(t, matchCondition(Condition{Operator: OpGreaterThanOrEqual, Value: 10}, 10))
	assert.True(t, matchCondition(Condition{Operator: OpLessThanOrEqual, Value: 10}, 10))

	assert.True(t, matchCondition(Condition{Operator: OpBetween, Low: 5, High: 15}, 10))
	assert.False(t, matchCondition(Condition{Operator: OpBetween, Low: 5, High: 15}, 20))
}

func TestMatchConditionUnknownOperatorIsFalse(t *testing.T) {
	assert.False(t, matchCondition(Condition{Operator: "bogus", Value: 10}, 10))
}

func TestPatternHitRate(t *testing.T) {
	p := Pattern{OutcomeCount: 4, PositiveOutcomes: 3}
	assert.Equal(t, 0.75, p.hitRate())

	empty := Pattern{}
	assert.Equal(t, 0.0, empty.hitRate())
}
