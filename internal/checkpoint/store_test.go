package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

func record(id, skill string) domain.Record {
	return domain.Record{
		SynthID:            id,
		SkillID:            skill,
		Model:              "qwen3-1.7b",
		SyntheticReasoning: "step one",
		SyntheticAnswer:    "42",
		Band:               []string{},
		Benchmarks:         []string{},
		Stages:             []string{},
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir(), log.Nop())

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Load() returned %d records, want 0", len(records))
	}
}

func TestStoreAppendAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewStore(dir, log.Nop())

	if err := s.Append([]domain.Record{record("a", "math"), record("b", "math")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append([]domain.Record{record("c", "logic")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(nil); err != nil {
		t.Fatalf("Append(nil) error = %v", err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Load() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"a", "b", "c"} {
		if records[i].SynthID != want {
			t.Errorf("records[%d].SynthID = %q, want %q", i, records[i].SynthID, want)
		}
	}
	if records[0].SyntheticAnswer != "42" {
		t.Errorf("SyntheticAnswer = %q, want 42", records[0].SyntheticAnswer)
	}

	ids := DoneIDs(records)
	if _, ok := ids["b"]; !ok || len(ids) != 3 {
		t.Errorf("DoneIDs() = %v", ids)
	}
	counts := CountBySkill(records)
	if counts["math"] != 2 || counts["logic"] != 1 {
		t.Errorf("CountBySkill() = %v", counts)
	}
}

func TestStoreSkipsTruncatedFinalLine(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	if err := s.Append([]domain.Record{record("a", "math")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n{\"synth_id\":\"b\",\"skill"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 || records[0].SynthID != "a" {
		t.Errorf("Load() = %+v, want only record a", records)
	}
}

func TestStoreAppendAfterTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	if err := s.Append([]domain.Record{record("a", "math"), record("b", "math")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{\"synth_id\":\"x\",\"ski"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Load() returned %d records, want 2", len(records))
	}

	if err := s.Append([]domain.Record{record("c", "logic"), record("d", "logic")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	records, err = s.Load()
	if err != nil {
		t.Fatalf("Load() after append error = %v", err)
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.SynthID)
	}
	if strings.Join(ids, ",") != "a,b,c,d" {
		t.Errorf("Load() ids = %v, want [a b c d]", ids)
	}
}

func TestStoreAppendAfterUnterminatedLine(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	if err := os.WriteFile(s.Path(), []byte("{\"synth_id\":\"a\"}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Append([]domain.Record{record("b", "math")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 || records[0].SynthID != "a" || records[1].SynthID != "b" {
		t.Errorf("Load() = %+v, want records a and b", records)
	}
}

func TestStoreLoadKeepsLastLinePerID(t *testing.T) {
	s := NewStore(t.TempDir(), log.Nop())

	if err := s.Append([]domain.Record{record("a", "math"), record("b", "math")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	scored := record("a", "math")
	scored.Verified = true
	scored.VerificationScore = 8
	if err := s.Append([]domain.Record{scored}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Load() returned %d records, want 2", len(records))
	}
	if records[0].SynthID != "a" || !records[0].Verified || records[0].VerificationScore != 8 {
		t.Errorf("records[0] = %+v, want scored record a", records[0])
	}
	if records[1].SynthID != "b" || records[1].Verified {
		t.Errorf("records[1] = %+v, want unscored record b", records[1])
	}
}

func TestStoreRejectsCorruptMiddleLine(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	content := "{\"synth_id\":\"a\"}\nnot json\n{\"synth_id\":\"b\"}\n"
	if err := os.WriteFile(s.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	if err == nil {
		t.Fatal("Load() expected error for corrupt line")
	}
	if !errors.HasCode(err, errors.ErrCodeCheckpointRead) {
		t.Errorf("Load() error code = %v, want %s", err, errors.ErrCodeCheckpointRead)
	}
}

func TestStoreRotate(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	prev, err := s.Rotate()
	if err != nil || prev != "" {
		t.Fatalf("Rotate() on empty dir = %q, %v", prev, err)
	}

	if err := s.Append([]domain.Record{record("a", "math")}); err != nil {
		t.Fatal(err)
	}
	prev, err = s.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if prev != s.Path()+".prev" {
		t.Errorf("Rotate() = %q", prev)
	}
	if _, err := os.Stat(prev); err != nil {
		t.Errorf("rotated log missing: %v", err)
	}

	records, err := s.Load()
	if err != nil || len(records) != 0 {
		t.Errorf("Load() after rotate = %d records, %v", len(records), err)
	}
}

func TestBufferFlushesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, log.Nop())

	var flushes []int
	b := NewBuffer(s, 2, func(written, total int) {
		flushes = append(flushes, total)
	})
	ctx := context.Background()

	if err := b.Add(ctx, record("a", "math")); err != nil {
		t.Fatal(err)
	}
	if b.Pending() != 1 || b.Written() != 0 {
		t.Errorf("after 1 add: pending=%d written=%d", b.Pending(), b.Written())
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("log written before threshold")
	}

	if err := b.Add(ctx, record("b", "math")); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(ctx, record("c", "math")); err != nil {
		t.Fatal(err)
	}
	if b.Pending() != 1 || b.Written() != 2 {
		t.Errorf("after 3 adds: pending=%d written=%d", b.Pending(), b.Written())
	}

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("Load() = %d records, want 3", len(records))
	}
	if len(flushes) != 2 || flushes[0] != 2 || flushes[1] != 3 {
		t.Errorf("flush totals = %v, want [2 3]", flushes)
	}
}

func TestBufferDefaultThreshold(t *testing.T) {
	b := NewBuffer(NewStore(t.TempDir(), log.Nop()), 0, nil)
	if b.every != DefaultFlushEvery {
		t.Errorf("every = %d, want %d", b.every, DefaultFlushEvery)
	}
}

func TestBufferKeepsRecordsOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// a file where the output directory should be
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBuffer(NewStore(blocked, log.Nop()), 1, nil)
	if err := b.Add(context.Background(), record("a", "math")); err == nil {
		t.Fatal("Add() expected error")
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", b.Pending())
	}
}
