package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.True(t, cfg.ContextManagementEnabled)
	assert.Equal(t, "native", cfg.ToolSyntax)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: bedrock\ntool_syntax: xml\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bedrock", cfg.Provider)
	assert.Equal(t, "xml", cfg.ToolSyntax)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: bedrock\n"), 0o644))

	t.Setenv("FORGE_PROVIDER", "anthropic")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
}

func TestSessionConfig_Projection(t *testing.T) {
	cfg := &Config{
		ContextManagementEnabled: true,
		ContextLimit:             200000,
		CompactionThreshold:      0.85,
		ToolScope:     "agent",
		ToolSyntax:    "native",
		SandboxPolicy: "workspace-write",
	}
	sc := cfg.SessionConfig()
	require.NotNil(t, sc.ContextLimit)
	assert.EqualValues(t, 200000, *sc.ContextLimit)
	assert.Equal(t, "native", sc.ToolSyntax)
}
