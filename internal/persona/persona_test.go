package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePersonaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BriefFile),
		[]byte("# autonet\n\nA civic-minded agent."), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StrategyFile),
		[]byte("Engage on governance topics."), 0600))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writePersonaDir(t)

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Contains(t, p.Brief, "civic-minded")
	assert.Contains(t, p.Strategy, "governance")
	assert.Empty(t, p.Knowledge, "knowledge file is optional")
}

func TestLoadRequiresBrief(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestSystemPromptSections(t *testing.T) {
	p := &Persona{Brief: "brief", Strategy: "strategy", Knowledge: "notes"}
	prompt := p.SystemPrompt()
	assert.Contains(t, prompt, "brief")
	assert.Contains(t, prompt, "## Current Strategy")
	assert.Contains(t, prompt, "## Accumulated Knowledge")

	bare := &Persona{Brief: "brief"}
	assert.Equal(t, "brief", bare.SystemPrompt())
}

func TestApplyEdit(t *testing.T) {
	dir := writePersonaDir(t)

	err := ApplyEdit(dir, "persona/STRATEGY.md", "governance topics", "governance and dispute topics")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, StrategyFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "dispute")
}

func TestApplyEditRejectsUnlistedFile(t *testing.T) {
	dir := writePersonaDir(t)

	err := ApplyEdit(dir, "persona/secrets.md", "a", "b")
	assert.Error(t, err)

	err = ApplyEdit(dir, "../persona/STRATEGY.md", "a", "b")
	assert.Error(t, err)
}

func TestApplyEditRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StrategyFile),
		[]byte("alpha beta alpha"), 0600))

	err := ApplyEdit(dir, "persona/STRATEGY.md", "alpha", "gamma")
	assert.ErrorContains(t, err, "2 times")

	err = ApplyEdit(dir, "persona/STRATEGY.md", "missing", "gamma")
	assert.ErrorContains(t, err, "not found")

	err = ApplyEdit(dir, "persona/STRATEGY.md", "", "gamma")
	assert.Error(t, err)
}
