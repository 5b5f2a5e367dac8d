// Package artifact defines the candidate artifacts produced by a pipeline
// run and the reviewer verdicts used to arbitrate between them.
package artifact

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/ascension-labs/govcore/internal/domain/stability"
)

// Candidate is the output of one pipeline run. It is either a single blob
// of content or a multi-file mapping of relative path to content.
// Candidates are immutable after creation.
type Candidate struct {
	Content     string            `json:"content"`
	IsMultifile bool              `json:"is_multifile"`
	Files       map[string]string `json:"files,omitempty"`
	// Stages holds each role's raw output in pipeline order.
	Stages []StageOutput `json:"stages,omitempty"`
}

// StageOutput records what a single role returned.
type StageOutput struct {
	Role   string `json:"role"`
	Output string `json:"output"`
}

// Verdict is a reviewer's judgement on one candidate.
type Verdict struct {
	ReviewerID string  `json:"reviewer_id"`
	Confidence float64 `json:"confidence"`
	Approve    bool    `json:"approve"`
	Rationale  string  `json:"rationale"`
}

// Score is the signed weight of a verdict: +confidence when approving,
// -confidence when rejecting.
func (v Verdict) Score() float64 {
	if v.Approve {
		return v.Confidence
	}
	return -v.Confidence
}

// SingleFilePath names the unit a single-file candidate contributes to a change set.
const SingleFilePath = "artifact"

// ChangeSet describes the candidate as added lines per unit, ordered by path.
func (c Candidate) ChangeSet() stability.ChangeSet {
	if !c.IsMultifile {
		return stability.ChangeSet{{Path: SingleFilePath, LinesAdded: countLines(c.Content)}}
	}
	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	cs := make(stability.ChangeSet, 0, len(paths))
	for _, p := range paths {
		cs = append(cs, stability.ChangeUnit{Path: p, LinesAdded: countLines(c.Files[p])})
	}
	return cs
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(s, "\n"), "\n") + 1
}

// FromImplementerOutput builds a Candidate from the implementer's text.
// It tries to read a JSON object of path -> content (optionally inside a
// markdown fence); on any failure the raw text becomes single-file content.
// This is a best-effort heuristic, not a classifier.
func FromImplementerOutput(raw string) Candidate {
	if files, ok := parseFileMap(raw); ok {
		return Candidate{Content: raw, IsMultifile: true, Files: files}
	}
	return Candidate{Content: raw}
}

func parseFileMap(raw string) (map[string]string, bool) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, false
	}
	var files map[string]string
	if err := json.Unmarshal([]byte(body), &files); err != nil {
		return nil, false
	}
	if len(files) == 0 {
		return nil, false
	}
	return files, true
}

// extractJSONObject strips markdown code fences and returns the span from
// the first '{' to the last '}', or "" when there is none.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
