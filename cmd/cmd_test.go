package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "cleanup", "recommend", "version"} {
		assert.True(t, names[want], want)
	}
	for _, flag := range []string{"config", "debug", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestIngest_RejectsUnknownPass(t *testing.T) {
	assert.True(t, validPass("primary"))
	assert.True(t, validPass("entry_level"))
	assert.True(t, validPass("manual"))
	assert.False(t, validPass("weekly"))

	rootCmd.SetArgs([]string{"ingest", "--kind", "weekly"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown pass "weekly"`)
}
