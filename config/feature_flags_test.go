package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.False(t, ff.Enabled(FeatureXPOnTransitionOnly))
	assert.True(t, ff.Enabled(FeatureAsyncDispatch))
	assert.False(t, ff.Enabled(FeatureAPIKeyAuth))
	assert.False(t, ff.Enabled("unknown.flag"))
}

func TestFeatureFlags_Environment(t *testing.T) {
	t.Setenv("FEATURE_PROGRESS_XP_ON_TRANSITION_ONLY", "true")
	t.Setenv("FEATURE_EVENTS_ASYNC_DISPATCH", "false")

	ff := LoadFeatureFlags()

	assert.True(t, ff.Enabled(FeatureXPOnTransitionOnly))
	assert.False(t, ff.Enabled(FeatureAsyncDispatch))
}

func TestFeatureFlags_Rollout(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureXPOnTransitionOnly, 50))

	enabled := 0
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		first := ff.EnabledFor(FeatureXPOnTransitionOnly, id)
		// bucketing is stable per learner
		assert.Equal(t, first, ff.EnabledFor(FeatureXPOnTransitionOnly, id))
		if first {
			enabled++
		}
	}
	assert.Equal(t, 6, enabled)

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureXPOnTransitionOnly, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("missing", 10), ErrFeatureNotFound)
}

func TestFeatureFlags_LearnerOverride(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetLearnerOverride("learner-1", FeatureXPOnTransitionOnly, true)
	assert.True(t, ff.EnabledFor(FeatureXPOnTransitionOnly, "learner-1"))
	assert.False(t, ff.EnabledFor(FeatureXPOnTransitionOnly, "learner-2"))

	ff.ClearLearnerOverrides("learner-1")
	assert.False(t, ff.EnabledFor(FeatureXPOnTransitionOnly, "learner-1"))
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_HTTP_API_KEY_AUTH", featureNameToEnvKey(FeatureAPIKeyAuth))
}
