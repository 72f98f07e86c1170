// Package prompts embeds the completion prompt templates and renders
// them with simple variable substitution.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptFS embed.FS

// Template names.
const (
	PromptExtract   = "extract"
	PromptClarify   = "clarify"
	PromptNarrative = "narrative"
)

// PromptTemplate is one embedded template.
type PromptTemplate struct {
	Name    string
	Content string
}

// PromptLoader serves the embedded templates. Immutable after New.
type PromptLoader struct {
	templates map[string]*PromptTemplate
}

// NewPromptLoader reads every embedded *.md template.
func NewPromptLoader() (*PromptLoader, error) {
	loader := &PromptLoader{templates: make(map[string]*PromptTemplate)}

	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read prompts directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		loader.templates[name] = &PromptTemplate{Name: name, Content: string(content)}
	}
	return loader, nil
}

// GetPrompt returns a template by name.
func (p *PromptLoader) GetPrompt(name string) (*PromptTemplate, error) {
	template, exists := p.templates[name]
	if !exists {
		return nil, fmt.Errorf("prompt template %q not found", name)
	}
	return template, nil
}

// RenderPrompt substitutes {{key}} placeholders with the given values.
func (p *PromptLoader) RenderPrompt(name string, variables map[string]string) (string, error) {
	template, err := p.GetPrompt(name)
	if err != nil {
		return "", err
	}
	content := template.Content
	for key, value := range variables {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content, nil
}

// ListPrompts returns every available template name.
func (p *PromptLoader) ListPrompts() []string {
	names := make([]string, 0, len(p.templates))
	for name := range p.templates {
		names = append(names, name)
	}
	return names
}

// ExtractionPrompt renders the preference extraction prompt for one
// visitor utterance.
func (p *PromptLoader) ExtractionPrompt(utterance string) (string, error) {
	return p.RenderPrompt(PromptExtract, map[string]string{
		"utterance": utterance,
	})
}

// ClarifyPrompt renders the question re-phrasing prompt. summary
// describes what is already known about the visitor, topic names the
// missing field in Russian, and question is the canned wording.
func (p *PromptLoader) ClarifyPrompt(summary, topic, question string) (string, error) {
	return p.RenderPrompt(PromptClarify, map[string]string{
		"summary":  summary,
		"topic":    topic,
		"question": question,
	})
}

// NarrativePrompt renders the recommendation narrative prompt.
func (p *PromptLoader) NarrativePrompt(summary, recommendations string) (string, error) {
	return p.RenderPrompt(PromptNarrative, map[string]string{
		"summary":         summary,
		"recommendations": recommendations,
	})
}
