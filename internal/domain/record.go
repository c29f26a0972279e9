package domain

import "fmt"

// Default values of the dataset columns that seeds do not carry
const (
	DefaultSeedLicense = "synthetic"

	// UnscoredVerification marks a record whose judge reply had no usable score
	UnscoredVerification = -1.0
)

// Record is one row of the output dataset. The column names match the
// SYNTH schema plus the skill metadata columns; list columns are parquet
// LIST<string>.
type Record struct {
	SynthID           string `json:"synth_id" parquet:"synth_id"`
	Language          string `json:"language" parquet:"language"`
	Exercise          string `json:"exercise" parquet:"exercise"`
	Model             string `json:"model" parquet:"model"`
	Query             string `json:"query" parquet:"query"`
	QuerySeedURL      string `json:"query_seed_url" parquet:"query_seed_url"`
	QuerySeedText     string `json:"query_seed_text" parquet:"query_seed_text"`
	AdditionalSeedURL string `json:"additional_seed_url" parquet:"additional_seed_url"`
	SeedLicense       string `json:"seed_license" parquet:"seed_license"`
	Constraints       string `json:"constraints" parquet:"constraints"`
	Script            string `json:"script" parquet:"script"`

	SyntheticReasoning string  `json:"synthetic_reasoning" parquet:"synthetic_reasoning"`
	SyntheticAnswer    string  `json:"synthetic_answer" parquet:"synthetic_answer"`
	Words              int     `json:"words" parquet:"words"`
	MaxNewTokensUsed   int     `json:"max_new_tokens_used" parquet:"max_new_tokens_used"`
	GenerationTimeS    float64 `json:"generation_time_s" parquet:"generation_time_s"`

	SkillID    string   `json:"skill_id" parquet:"skill_id"`
	Category   string   `json:"category" parquet:"category"`
	Band       []string `json:"band" parquet:"band,list"`
	Benchmarks []string `json:"benchmarks" parquet:"benchmarks,list"`
	CoTStyle   string   `json:"cot_style" parquet:"cot_style"`
	Stages     []string `json:"stages" parquet:"stages,list"`

	Verified          bool    `json:"verified" parquet:"verified"`
	VerificationScore float64 `json:"verification_score" parquet:"verification_score"`
}

// NewRecord copies the seed columns of s into a record produced by modelID
func NewRecord(s Seed, modelID string) Record {
	return Record{
		SynthID:       s.ID,
		Language:      s.Language,
		Exercise:      s.Category,
		Model:         modelID,
		Query:         s.Query,
		QuerySeedURL:  s.SeedURL,
		QuerySeedText: s.SeedText,
		SeedLicense:   DefaultSeedLicense,
		Constraints:   s.Constraints,
		Script:        fmt.Sprintf("skill=%s cot=%s", s.SkillID, s.CoTStyle),
		SkillID:       s.SkillID,
		Category:      s.Category,
		Band:          nonNil(s.Band),
		Benchmarks:    nonNil(s.Benchmarks),
		CoTStyle:      s.CoTStyle,
		Stages:        nonNil(s.Stages),
	}
}

// Complete reports whether both reasoning and answer were extracted
func (r Record) Complete() bool {
	return r.SyntheticReasoning != "" && r.SyntheticAnswer != ""
}

// WordsPerSecond is the generation speed of the record, 0 when untimed
func (r Record) WordsPerSecond() float64 {
	if r.GenerationTimeS <= 0 {
		return 0
	}
	return float64(r.Words) / r.GenerationTimeS
}

// list columns are written as [] rather than null
func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return cloneStrings(in)
}
