package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type Mode string

const (
	ModeCommand Mode = "command"
	ModeInsight Mode = "insight"
	ModeChat    Mode = "chat"
)

type promptSpec struct {
	Temperature float32 `yaml:"temperature"`
	JSON        bool    `yaml:"json"`
	System      string  `yaml:"system"`
}

type catalogFile struct {
	DefaultMode Mode                `yaml:"default_mode"`
	Modes       map[Mode]promptSpec `yaml:"modes"`
}

// Prompt is a parsed template for one mode.
type Prompt struct {
	Mode        Mode
	Temperature float32
	JSON        bool
	tmpl        *template.Template
}

// PromptData is what system templates can reference.
type PromptData struct {
	Commands   []string
	Canvas     string
	ItemCount  int
	Background string
	Tables     string
}

func (p *Prompt) Render(d PromptData) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", p.Mode, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Catalog selects prompts by mode.
type Catalog struct {
	def   Mode
	modes map[Mode]*Prompt
}

// LoadCatalog parses the embedded prompt file.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(promptsYAML)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if len(f.Modes) == 0 {
		return nil, fmt.Errorf("parse prompts: no modes defined")
	}

	c := &Catalog{def: f.DefaultMode, modes: make(map[Mode]*Prompt, len(f.Modes))}
	for m, spec := range f.Modes {
		t, err := template.New(string(m)).Option("missingkey=error").Parse(spec.System)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", m, err)
		}
		c.modes[m] = &Prompt{Mode: m, Temperature: spec.Temperature, JSON: spec.JSON, tmpl: t}
	}
	if _, ok := c.modes[c.def]; !ok {
		return nil, fmt.Errorf("parse prompts: default mode %q not defined", c.def)
	}
	return c, nil
}

// Get returns the prompt for mode; unknown or empty modes fall back to the default.
func (c *Catalog) Get(mode string) *Prompt {
	if p, ok := c.modes[Mode(strings.ToLower(strings.TrimSpace(mode)))]; ok {
		return p
	}
	return c.modes[c.def]
}
