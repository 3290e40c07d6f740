package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"generate", "catalog", "config"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestCatalogSubcommands(t *testing.T) {
	subs := map[string]bool{}
	for _, c := range catalogCmd.Commands() {
		subs[c.Name()] = true
	}
	for _, want := range []string{"import", "search", "stats"} {
		assert.True(t, subs[want], "missing catalog subcommand %q", want)
	}
}

func TestGenerateFlags(t *testing.T) {
	for _, name := range []string{"by-chapters", "concurrency", "json", "session", "timeout"} {
		require.NotNil(t, generateCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 10))
	assert.Equal(t, "larguis...", truncate("larguisimo texto", 10))
	assert.Len(t, truncate("larguisimo texto", 10), 10)
}
