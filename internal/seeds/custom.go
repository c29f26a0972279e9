package seeds

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// customLine is one line of a custom seeds file. "text" is accepted for
// seed_text and "source" becomes the seed url.
type customLine struct {
	Query       string `json:"query"`
	SeedText    string `json:"seed_text"`
	Text        string `json:"text"`
	Language    string `json:"language"`
	Constraints string `json:"constraints"`
	Source      string `json:"source"`
}

// Custom serves the seeds of a JSONL file to every skill
type Custom struct {
	path    string
	entries []entry
}

// LoadCustom reads a JSONL seeds file. Blank lines are skipped; any other
// malformed line fails the load.
func LoadCustom(path string) (*Custom, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "custom seeds file not found: "+path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to open custom seeds", err)
	}
	defer f.Close()

	c := &Custom{path: path}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw customLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, errors.NewFileUnmarshalError(fmt.Sprintf("%s:%d", path, n), "JSONL", err)
		}

		e := entry{
			Query:       raw.Query,
			SeedText:    raw.SeedText,
			Language:    raw.Language,
			Constraints: raw.Constraints,
			SeedURL:     raw.Source,
		}
		if e.SeedText == "" {
			e.SeedText = raw.Text
		}
		if e.SeedURL == "" {
			e.SeedURL = "custom"
		}
		c.entries = append(c.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read custom seeds", err)
	}
	return c, nil
}

// Seeds binds the file's seeds to skill
func (c *Custom) Seeds(skill domain.Skill, limit int) ([]domain.Seed, error) {
	return bindAll(c.entries, skill, limit), nil
}

// Len is the number of seeds in the file
func (c *Custom) Len() int {
	return len(c.entries)
}
