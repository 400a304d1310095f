package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name  string
		class Class
		valid bool
	}{
		{"v1.2.0", ClassVersion, true},
		{"v0.0.1-rc.1", ClassVersion, true},
		{"v1.2", ClassVersion, false},
		{"1.2.0", ClassVersion, false},
		{"v1.2.0 ", ClassVersion, false},

		{"env/staging", ClassEnvironment, true},
		{"env/prod-eu-1", ClassEnvironment, true},
		{"env/", ClassEnvironment, false},
		{"env/Staging", ClassEnvironment, false},
		{"staging", ClassEnvironment, false},

		{"state/staging-success", ClassState, true},
		{"state/rollback-initiated", ClassState, true},
		{"state/", ClassState, false},

		{"deploy/2026-08-25-run1", ClassDeployment, true},
		{"deploy/2026-08-25-build_7.2", ClassDeployment, true},
		{"deploy/run1", ClassDeployment, false},

		{"backup/env/staging/20260825T101500123456789", ClassBackup, true},
		{"backup/env/staging/20260825", ClassBackup, false},
	}

	for _, tc := range cases {
		err := ValidateName(tc.name, tc.class)
		if tc.valid {
			assert.NoError(t, err, "%s as %s", tc.name, tc.class)
		} else {
			assert.ErrorIs(t, err, ErrInvalidName, "%s as %s", tc.name, tc.class)
		}
	}
}

func TestValidateNameUnknownClass(t *testing.T) {
	err := ValidateName("anything", Class("branch"))
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		class Class
	}{
		{"v2.0.0", ClassVersion},
		{"env/production", ClassEnvironment},
		{"state/production-failed", ClassState},
		{"deploy/2026-08-25-run42", ClassDeployment},
		{"backup/env/production/20260825T090000000000001", ClassBackup},
	}

	for _, tc := range cases {
		class, err := Parse(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.class, class, tc.name)
	}
}

func TestParseRejectsUnknownPrefix(t *testing.T) {
	_, err := Parse("release/1.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidName))

	// A version-looking name still has to match the full format.
	_, err = Parse("version-one")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestIsMovable(t *testing.T) {
	assert.True(t, ClassEnvironment.IsMovable())
	assert.True(t, ClassState.IsMovable())
	assert.False(t, ClassVersion.IsMovable())
	assert.False(t, ClassDeployment.IsMovable())
	assert.False(t, ClassBackup.IsMovable())
}

func TestTagNameHelpers(t *testing.T) {
	assert.Equal(t, "env/staging", EnvironmentTag("staging"))
	assert.Equal(t, "env/rollback-staging", RollbackEnvironmentTag("staging"))
	assert.Equal(t, "state/staging-success", StateTag("staging", "success"))

	// Helper outputs always pass their own class validation.
	require.NoError(t, ValidateName(EnvironmentTag("staging"), ClassEnvironment))
	require.NoError(t, ValidateName(RollbackEnvironmentTag("staging"), ClassEnvironment))
	require.NoError(t, ValidateName(StateTag("staging", "success"), ClassState))
	require.NoError(t, ValidateName(RollbackInitiatedTag, ClassState))
}
