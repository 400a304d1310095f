package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

func TestTagMatcher(t *testing.T) {
	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		// Match-all forms.
		{"", "v1.0.0", true},
		{"*", "v1.0.0", true},
		{"*", "backup/env/staging/20260825T101500123456789", true},

		// Globs cross slashes, so depth does not matter.
		{"backup/*", "backup/env/staging/20260825T101500123456789", true},
		{"backup/*", "backup/v1.0.0/20260825T101500123456789", true},
		{"backup/*", "env/staging", false},
		{"env/*", "env/staging", true},
		{"v*", "v1.2.3", true},
		{"v*", "env/staging", false},

		// Trailing slash is a plain prefix match.
		{"backup/env/staging/", "backup/env/staging/20260825T101500123456789", true},
		{"backup/env/staging/", "backup/env/production/20260825T101500123456789", false},

		// ? matches exactly one character.
		{"v1.0.?", "v1.0.3", true},
		{"v1.0.?", "v1.0.30", false},
	}
	for _, tc := range cases {
		matcher, err := NewTagMatcher(tc.pattern)
		require.NoError(t, err)
		assert.Equal(t, tc.want, matcher.Match(tc.name), "pattern %q against %q", tc.pattern, tc.name)
	}
}

func TestMemoryPushMatchesAllClasses(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	for name, class := range map[string]taxonomy.Class{
		"v1.0.0":      taxonomy.ClassVersion,
		"env/staging": taxonomy.ClassEnvironment,
		"backup/env/staging/20260825T101500123456789": taxonomy.ClassBackup,
		"backup/v1.0.0/20260825T101600123456789":      taxonomy.ClassBackup,
	} {
		require.NoError(t, mem.Create(ctx, &models.Tag{Name: name, Class: class, Commit: "c1"}))
	}

	// Backups at different depths are addressed by one glob.
	count, err := mem.Push(ctx, "backup/*", "origin")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Bare "*" and "" both push everything.
	count, err = mem.Push(ctx, "*", "mirror")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	count, err = mem.Push(ctx, "", "mirror2")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	assert.Len(t, mem.Published("origin"), 2)
}
