package medication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePreferences_SeedsOnce(t *testing.T) {
	svc := newTestService(t)

	seed := Preferences{RemindersEnabled: true, AdaptiveReminders: false, RefillAlerts: true}
	require.NoError(t, svc.EnsurePreferences(seed))

	prefs, err := svc.Preferences()
	require.NoError(t, err)
	assert.Equal(t, seed, prefs)

	// A later seed never overwrites what is already stored
	require.NoError(t, svc.EnsurePreferences(DefaultPreferences()))

	prefs, err = svc.Preferences()
	require.NoError(t, err)
	assert.False(t, prefs.AdaptiveReminders)
}

func TestEnsurePreferences_KeepsUserChanges(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SetPreferences(Preferences{RemindersEnabled: false}))
	require.NoError(t, svc.EnsurePreferences(DefaultPreferences()))

	prefs, err := svc.Preferences()
	require.NoError(t, err)
	assert.False(t, prefs.RemindersEnabled, "explicit preferences survive a restart's seeding")
}
