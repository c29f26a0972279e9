// Package seeds supplies the input seeds of each skill, from the built-in
// banks or from a user JSONL file.
package seeds

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

//go:embed builtin/banks.yaml
var builtinBanks []byte

// DefaultLanguage is assumed when a seed does not name one
const DefaultLanguage = "en"

// Source produces the seeds of a skill. limit <= 0 means all.
type Source interface {
	Seeds(skill domain.Skill, limit int) ([]domain.Seed, error)
}

// SeedID is the deterministic id of a seed: the skill id and the first 12
// hex digits of a blake3 digest over skill id, query and seed text
func SeedID(skillID, query, seedText string) string {
	sum := blake3.Sum256([]byte(skillID + "_" + query + "_" + seedText))
	return skillID + "_" + hex.EncodeToString(sum[:])[:12]
}

// entry is a seed before it is bound to a skill
type entry struct {
	Query       string `yaml:"query" json:"query"`
	SeedText    string `yaml:"seed_text" json:"seed_text"`
	Language    string `yaml:"language" json:"language"`
	Constraints string `yaml:"constraints" json:"constraints"`
	SeedURL     string `yaml:"seed_url" json:"seed_url"`
}

func (e entry) bind(skill domain.Skill) domain.Seed {
	lang := e.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return skill.Stamp(domain.Seed{
		ID:          SeedID(skill.ID, e.Query, e.SeedText),
		Language:    lang,
		Query:       e.Query,
		SeedText:    e.SeedText,
		SeedURL:     e.SeedURL,
		Constraints: e.Constraints,
	})
}

func bindAll(entries []entry, skill domain.Skill, limit int) []domain.Seed {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.Seed, len(entries))
	for i, e := range entries {
		out[i] = e.bind(skill)
	}
	return out
}

type bankFile struct {
	Sources  map[string][]string `yaml:"sources"`
	Fallback string              `yaml:"fallback"`
	Sets     map[string][]entry  `yaml:"sets"`
}

// Bank serves the built-in seed banks
type Bank struct {
	sources  map[string][]entry
	fallback []entry
	logger   *log.Logger
}

// Builtin loads the embedded seed banks
func Builtin(logger *log.Logger) (*Bank, error) {
	var file bankFile
	if err := yaml.Unmarshal(builtinBanks, &file); err != nil {
		return nil, fmt.Errorf("failed to parse built-in seed banks: %w", err)
	}

	b := &Bank{
		sources: make(map[string][]entry, len(file.Sources)),
		logger:  log.OrDefault(logger),
	}
	for name, sets := range file.Sources {
		var entries []entry
		for _, set := range sets {
			seeds, ok := file.Sets[set]
			if !ok {
				return nil, fmt.Errorf("seed source %s: unknown set %s", name, set)
			}
			entries = append(entries, seeds...)
		}
		b.sources[name] = entries
	}

	fallback, ok := file.Sets[file.Fallback]
	if !ok {
		return nil, fmt.Errorf("fallback seed set %q not defined", file.Fallback)
	}
	b.fallback = fallback
	return b, nil
}

// Seeds returns the seeds of skill's source in bank order. An unknown or
// empty source serves the fallback set.
func (b *Bank) Seeds(skill domain.Skill, limit int) ([]domain.Seed, error) {
	entries := b.sources[skill.SeedSource]
	if len(entries) == 0 {
		b.logger.Warn("no seeds for source, using fallback", "skill", skill.ID, "source", skill.SeedSource)
		entries = b.fallback
	}
	return bindAll(entries, skill, limit), nil
}

// Has reports whether the bank knows source
func (b *Bank) Has(source string) bool {
	return len(b.sources[source]) > 0
}

// Sources lists the source names, sorted
func (b *Bank) Sources() []string {
	names := make([]string, 0, len(b.sources))
	for name := range b.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
