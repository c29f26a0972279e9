// Package dataset materializes the final dataset files and summarizes them.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// Output file names
const (
	ParquetName = "synth.parquet"
	JSONLName   = "synth.jsonl"
	CSVName     = "synth.csv"
)

// Output formats
const (
	FormatParquet = "parquet"
	FormatJSONL   = "jsonl"
	FormatCSV     = "csv"
	// FormatBoth writes parquet and jsonl
	FormatBoth = "both"
)

// Writer writes a complete dataset and returns the file it wrote
type Writer interface {
	Write(records []domain.Record) (string, error)
}

// NewWriters returns the writers of format into dir
func NewWriters(format, dir string) ([]Writer, error) {
	switch strings.ToLower(format) {
	case "", FormatParquet:
		return []Writer{&ParquetWriter{Dir: dir}}, nil
	case FormatJSONL:
		return []Writer{&JSONLWriter{Dir: dir}}, nil
	case FormatCSV:
		return []Writer{&CSVWriter{Dir: dir}}, nil
	case FormatBoth:
		return []Writer{&ParquetWriter{Dir: dir}, &JSONLWriter{Dir: dir}}, nil
	default:
		return nil, errors.New(errors.ErrCodeUnknownOutputFormat, "unknown output format: "+format).
			WithSuggestion("Use one of: parquet, jsonl, csv, both")
	}
}

// ParquetWriter writes a single snappy-compressed parquet file
type ParquetWriter struct {
	Dir  string
	Name string
}

// Write replaces <dir>/synth.parquet with records
func (w *ParquetWriter) Write(records []domain.Record) (string, error) {
	name := w.Name
	if name == "" {
		name = ParquetName
	}
	return writeFile(w.Dir, name, func(out io.Writer) error {
		pw := parquet.NewGenericWriter[domain.Record](out, parquet.Compression(&parquet.Snappy))
		if _, err := pw.Write(records); err != nil {
			pw.Close()
			return err
		}
		return pw.Close()
	})
}

// JSONLWriter writes one JSON object per record
type JSONLWriter struct {
	Dir  string
	Name string
}

// Write replaces <dir>/synth.jsonl with records
func (w *JSONLWriter) Write(records []domain.Record) (string, error) {
	name := w.Name
	if name == "" {
		name = JSONLName
	}
	return writeFile(w.Dir, name, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("record %s: %w", r.SynthID, err)
			}
		}
		return nil
	})
}

// Columns is the CSV header, in dataset schema order
var Columns = []string{
	"synth_id", "language", "exercise", "model", "query",
	"query_seed_url", "query_seed_text", "additional_seed_url", "seed_license",
	"constraints", "script", "synthetic_reasoning", "synthetic_answer",
	"words", "max_new_tokens_used", "generation_time_s",
	"skill_id", "category", "band", "benchmarks", "cot_style", "stages",
	"verified", "verification_score",
}

// CSVWriter writes a header row and one row per record. List columns are
// JSON-encoded.
type CSVWriter struct {
	Dir  string
	Name string
}

// Write replaces <dir>/synth.csv with records
func (w *CSVWriter) Write(records []domain.Record) (string, error) {
	name := w.Name
	if name == "" {
		name = CSVName
	}
	return writeFile(w.Dir, name, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write(row(r)); err != nil {
				return fmt.Errorf("record %s: %w", r.SynthID, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func row(r domain.Record) []string {
	return []string{
		r.SynthID, r.Language, r.Exercise, r.Model, r.Query,
		r.QuerySeedURL, r.QuerySeedText, r.AdditionalSeedURL, r.SeedLicense,
		r.Constraints, r.Script, r.SyntheticReasoning, r.SyntheticAnswer,
		strconv.Itoa(r.Words),
		strconv.Itoa(r.MaxNewTokensUsed),
		strconv.FormatFloat(r.GenerationTimeS, 'f', -1, 64),
		r.SkillID, r.Category, jsonList(r.Band), jsonList(r.Benchmarks), r.CoTStyle, jsonList(r.Stages),
		strconv.FormatBool(r.Verified),
		strconv.FormatFloat(r.VerificationScore, 'f', -1, 64),
	}
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// writeFile writes to a temp file next to the target and renames it into
// place
func writeFile(dir, name string, fill func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create output directory", err)
	}
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create "+name, err)
	}
	tmpPath := tmp.Name()

	buf := bufio.NewWriter(tmp)
	if err := fill(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+name, err)
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to replace "+name, err)
	}
	return path, nil
}

// ReadJSONL reads a dataset or checkpoint file written as JSONL
func ReadJSONL(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "dataset not found: "+path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to open dataset", err)
	}
	defer f.Close()

	var records []domain.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 64<<20)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r domain.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, errors.NewFileUnmarshalError(fmt.Sprintf("%s:%d", path, n), "JSON", err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read dataset", err)
	}
	return records, nil
}

// ReadParquet reads a dataset written by ParquetWriter
func ReadParquet(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "dataset not found: "+path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to open dataset", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to stat dataset", err)
	}
	if _, err := parquet.OpenFile(f, info.Size()); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "parquet", err)
	}

	r := parquet.NewGenericReader[domain.Record](f)
	defer r.Close()

	records := make([]domain.Record, r.NumRows())
	total := 0
	for total < len(records) {
		n, err := r.Read(records[total:])
		total += n
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read dataset", err)
		}
	}
	return records[:total], nil
}
