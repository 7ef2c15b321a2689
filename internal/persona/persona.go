// Package persona loads the agent's identity files and applies the
// model-proposed edits to them. Only a fixed set of files may ever be
// edited; everything else in the persona directory is operator-owned.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/autonet-code/molt/internal/security"
)

// Well-known persona files. AGENT_BRIEF.md is the identity, STRATEGY.md
// the evolving playbook, knowledge.md the accumulated notes.
const (
	BriefFile     = "AGENT_BRIEF.md"
	StrategyFile  = "STRATEGY.md"
	KnowledgeFile = "knowledge.md"
)

// Persona is the loaded identity material fed into every prompt.
type Persona struct {
	Brief     string
	Strategy  string
	Knowledge string
}

// Load reads the persona files from dir. Missing files are tolerated so
// a fresh agent can start from just an AGENT_BRIEF.md.
func Load(dir string) (*Persona, error) {
	p := &Persona{}

	brief, err := readIfPresent(filepath.Join(dir, BriefFile))
	if err != nil {
		return nil, err
	}
	p.Brief = brief

	strategy, err := readIfPresent(filepath.Join(dir, StrategyFile))
	if err != nil {
		return nil, err
	}
	p.Strategy = strategy

	knowledge, err := readIfPresent(filepath.Join(dir, KnowledgeFile))
	if err != nil {
		return nil, err
	}
	p.Knowledge = knowledge

	if p.Brief == "" {
		return nil, fmt.Errorf("persona: %s missing or empty in %s", BriefFile, dir)
	}
	return p, nil
}

func readIfPresent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// SystemPrompt assembles the persona sections into one system prompt.
func (p *Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(p.Brief)
	if p.Strategy != "" {
		b.WriteString("\n\n## Current Strategy\n\n")
		b.WriteString(p.Strategy)
	}
	if p.Knowledge != "" {
		b.WriteString("\n\n## Accumulated Knowledge\n\n")
		b.WriteString(p.Knowledge)
	}
	return b.String()
}

// ApplyEdit replaces oldText with newText in one of the editable persona
// files. file is the persona-relative path as the model names it, e.g.
// "persona/STRATEGY.md". The edit is rejected when the target is not on
// the allowlist, oldText is absent, or it matches more than once.
func ApplyEdit(dir, file, oldText, newText string) error {
	if !security.IsAuthorizedEditTarget(file) {
		return fmt.Errorf("persona: %q is not an editable persona file", file)
	}
	if oldText == "" {
		return fmt.Errorf("persona: empty old_text for %s", file)
	}

	target := filepath.Join(dir, filepath.Base(filepath.ToSlash(file)))
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("persona: read %s: %w", target, err)
	}
	content := string(data)

	switch n := strings.Count(content, oldText); {
	case n == 0:
		return fmt.Errorf("persona: old_text not found in %s", file)
	case n > 1:
		return fmt.Errorf("persona: old_text matches %d times in %s, edit must be unique", n, file)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	return os.WriteFile(target, []byte(updated), 0600)
}
