// Package prompt renders the system and user messages for a seed in one of
// the reasoning styles. Styles are text/template sources embedded in the
// binary and may be overridden from a YAML file.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

//go:embed builtin/styles.yaml
var builtinStyles []byte

// Builder renders the messages of one generation request
type Builder interface {
	Build(style string, seed domain.Seed) (system, user string, err error)
}

// Style is the source of one reasoning style
type Style struct {
	System      string `yaml:"system"`
	User        string `yaml:"user"`
	Instruction string `yaml:"instruction"`
}

type catalogueFile struct {
	Envelope string           `yaml:"envelope"`
	Styles   map[string]Style `yaml:"styles"`
}

type compiled struct {
	system      *template.Template
	user        *template.Template
	instruction string
}

// fallback serves styles missing from the catalogue
var fallback = Style{
	System: "You are a careful expert. Think step by step before answering.",
	User:   "{{.Query}}{{if .SeedText}}\n\nContext:\n{{.SeedText}}{{end}}",
	Instruction: "1. Restate the task\n" +
		"2. Work through it step by step\n" +
		"3. Check the result\n" +
		"4. State the conclusion",
}

// Catalogue is a compiled set of styles. It is safe for concurrent use.
type Catalogue struct {
	envelope *template.Template
	styles   map[string]compiled
	fallback compiled
}

// templateData is what style templates see
type templateData struct {
	Language    string
	Query       string
	SeedText    string
	Constraints string
}

// Builtin compiles the embedded catalogue
func Builtin() (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(builtinStyles, &file); err != nil {
		return nil, fmt.Errorf("failed to parse built-in styles: %w", err)
	}
	return compile(file)
}

// Load compiles the embedded catalogue with the styles of path layered on
// top. A style in path replaces the built-in style of the same name; an
// envelope in path replaces the built-in envelope.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Builtin()
	}

	var base catalogueFile
	if err := yaml.Unmarshal(builtinStyles, &base); err != nil {
		return nil, fmt.Errorf("failed to parse built-in styles: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "prompt file not found: "+path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read prompt file", err)
	}

	var overlay catalogueFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}

	if overlay.Envelope != "" {
		base.Envelope = overlay.Envelope
	}
	for name, s := range overlay.Styles {
		base.Styles[name] = s
	}
	return compile(base)
}

func compile(file catalogueFile) (*Catalogue, error) {
	envelope, err := template.New("envelope").Parse(file.Envelope)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	c := &Catalogue{
		envelope: envelope,
		styles:   make(map[string]compiled, len(file.Styles)),
	}
	for name, s := range file.Styles {
		cs, err := compileStyle(name, s)
		if err != nil {
			return nil, err
		}
		c.styles[name] = cs
	}

	c.fallback, err = compileStyle("fallback", fallback)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func compileStyle(name string, s Style) (compiled, error) {
	if strings.TrimSpace(s.User) == "" || strings.TrimSpace(s.Instruction) == "" {
		return compiled{}, errors.NewConfigInvalidError(fmt.Sprintf("style %q needs a user template and an instruction", name))
	}
	system, err := template.New(name + ".system").Parse(s.System)
	if err != nil {
		return compiled{}, fmt.Errorf("style %s: system: %w", name, err)
	}
	user, err := template.New(name + ".user").Parse(s.User)
	if err != nil {
		return compiled{}, fmt.Errorf("style %s: user: %w", name, err)
	}
	return compiled{
		system:      system,
		user:        user,
		instruction: strings.TrimSpace(s.Instruction),
	}, nil
}

// Has reports whether style is in the catalogue
func (c *Catalogue) Has(style string) bool {
	_, ok := c.styles[style]
	return ok
}

// Styles returns the style names, sorted
func (c *Catalogue) Styles() []string {
	names := make([]string, 0, len(c.styles))
	for name := range c.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build renders the system message and the enveloped user message for seed.
// Unknown styles render with a generic step-by-step style.
func (c *Catalogue) Build(style string, seed domain.Seed) (string, string, error) {
	s, ok := c.styles[style]
	if !ok {
		s = c.fallback
	}

	data := templateData{
		Language:    LanguageName(seed.Language),
		Query:       seed.Query,
		SeedText:    seed.SeedText,
		Constraints: seed.Constraints,
	}

	system, err := render(s.system, data)
	if err != nil {
		return "", "", err
	}
	user, err := render(s.user, data)
	if err != nil {
		return "", "", err
	}

	full, err := render(c.envelope, struct {
		User        string
		Instruction string
	}{User: user, Instruction: s.instruction})
	if err != nil {
		return "", "", err
	}
	return system, full, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
