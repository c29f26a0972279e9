// Package checkpoint persists run progress so an interrupted run can resume:
// an append-only JSONL log of finished records and a JSON run manifest.
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// LogName is the record log file inside the output directory
const LogName = "_checkpoint.jsonl"

// maxLineBytes bounds one record line
const maxLineBytes = 64 << 20

// Store is the append-only record log of an output directory
type Store struct {
	dir    string
	logger *log.Logger
}

// NewStore creates a store for dir. Nothing is touched until the first
// append.
func NewStore(dir string, logger *log.Logger) *Store {
	return &Store{dir: dir, logger: log.OrDefault(logger)}
}

// Path returns the log file path
func (s *Store) Path() string {
	return filepath.Join(s.dir, LogName)
}

// Append writes records to the end of the log and syncs the file
func (s *Store) Append(records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create output directory", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.SynthID, err)
		}
	}

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to open checkpoint log", err)
	}
	open, err := endsOpen(f)
	if err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to inspect checkpoint log", err)
	}
	data := buf.Bytes()
	if open {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to append to checkpoint log", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to sync checkpoint log", err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to close checkpoint log", err)
	}
	return nil
}

// endsOpen reports whether f is non-empty and its last byte is not a newline
func endsOpen(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Load reads the records of the log in the order they were first written.
// A record appended again, such as after scoring, replaces the earlier line
// of the same synth id. A missing log is an empty log. Blank lines are
// skipped. A malformed final line, which is what a crash in the middle of an
// append leaves behind, is cut off the file so later appends start on a
// clean line.
func (s *Store) Load() ([]domain.Record, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeCheckpointRead, "failed to open checkpoint log", err)
	}
	defer f.Close()

	var (
		records []domain.Record
		badLine int
		badErr  error
		goodEnd int64
		offset  int64
	)
	reader := bufio.NewReaderSize(f, 64<<10)
	n := 0
	for {
		raw, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, errors.Wrap(errors.ErrCodeCheckpointRead, "failed to read checkpoint log", readErr)
		}
		if len(raw) > maxLineBytes {
			return nil, errors.New(errors.ErrCodeCheckpointRead,
				fmt.Sprintf("%s:%d: line exceeds %d bytes", s.Path(), n+1, maxLineBytes))
		}
		if len(raw) > 0 {
			n++
			offset += int64(len(raw))
			line := bytes.TrimSpace(raw)
			if len(line) > 0 {
				if badErr != nil {
					// a malformed line followed by more data is corruption
					return nil, errors.Wrap(errors.ErrCodeCheckpointRead,
						fmt.Sprintf("%s:%d: malformed record", s.Path(), badLine), badErr).
						WithSuggestion("Remove the damaged line or start without --resume")
				}
				var r domain.Record
				if err := json.Unmarshal(line, &r); err != nil {
					badLine, badErr = n, err
				} else {
					records = append(records, r)
					goodEnd = offset
				}
			} else if badErr == nil {
				goodEnd = offset
			}
		}
		if readErr == io.EOF {
			break
		}
	}

	if badErr != nil {
		s.logger.Warn("discarding truncated final checkpoint line", "path", s.Path(), "line", badLine)
		if err := os.Truncate(s.Path(), goodEnd); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to cut truncated checkpoint line", err)
		}
	}
	return latest(records), nil
}

// latest keeps the last line of every synth id at the position of its first
func latest(records []domain.Record) []domain.Record {
	pos := make(map[string]int, len(records))
	out := records[:0]
	for _, r := range records {
		if i, ok := pos[r.SynthID]; ok {
			out[i] = r
			continue
		}
		pos[r.SynthID] = len(out)
		out = append(out, r)
	}
	return out
}

// Rotate moves an existing log aside to <log>.prev so a fresh run starts
// empty. It is a no-op when there is no log.
func (s *Store) Rotate() (string, error) {
	if _, err := os.Stat(s.Path()); os.IsNotExist(err) {
		return "", nil
	}
	prev := s.Path() + ".prev"
	if err := os.Rename(s.Path(), prev); err != nil {
		return "", errors.Wrap(errors.ErrCodeCheckpointWrite, "failed to rotate checkpoint log", err)
	}
	return prev, nil
}

// DoneIDs returns the synth ids of records
func DoneIDs(records []domain.Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.SynthID] = struct{}{}
	}
	return ids
}

// CountBySkill counts records per skill id
func CountBySkill(records []domain.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[strings.TrimSpace(r.SkillID)]++
	}
	return counts
}
