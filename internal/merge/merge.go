// Package merge reconstructs one chronological transcript from
// independently transcribed per-speaker segments.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/transcribe"
)

// Merge sorts segments chronologically, drops segments below the minimum
// character threshold, and coalesces adjacent same-speaker segments whose gap
// is within the configured threshold.
//
// Returns one line per merged segment:
//
//	<timestamp> <speaker>: <text>
//
// joined by newlines with no trailing newline. Empty input (or input fully
// removed by the filter) yields the empty string.
func Merge(segments []transcribe.Segment, cfg config.MergerConfig) string {
	if len(segments) == 0 {
		return ""
	}

	sorted := make([]transcribe.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	// Filter before merging: a dropped short segment must not bridge a gap
	// between its neighbors.
	filtered := sorted[:0]
	for _, s := range sorted {
		if len([]rune(strings.TrimSpace(s.Text))) >= cfg.MinSegmentChars {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return ""
	}

	// Merge against the accumulating predecessor only, never a window: a
	// chain of same-speaker segments each within threshold of its neighbor
	// collapses into one segment regardless of total span.
	merged := []transcribe.Segment{filtered[0]}
	for _, s := range filtered[1:] {
		prev := &merged[len(merged)-1]

		gap := s.Start - prev.End
		if gap < 0 {
			gap = 0
		}

		if s.Speaker == prev.Speaker && gap <= cfg.GapMergeThresholdSec {
			prev.End = s.End
			prev.Text = prev.Text + " " + s.Text
		} else {
			merged = append(merged, s)
		}
	}

	lines := make([]string, len(merged))
	for i, s := range merged {
		lines[i] = fmt.Sprintf("%s %s: %s", formatTimestamp(s.Start, cfg.TimestampFormat), s.Speaker, s.Text)
	}
	return strings.Join(lines, "\n")
}

// formatTimestamp renders seconds using the configured template. Supported
// placeholders: {hh}, {mm}, {ss}, each zero-padded to two digits.
func formatTimestamp(seconds float64, format string) string {
	total := int(seconds)
	hh := total / 3600
	mm := (total % 3600) / 60
	ss := total % 60

	r := strings.NewReplacer(
		"{hh}", fmt.Sprintf("%02d", hh),
		"{mm}", fmt.Sprintf("%02d", mm),
		"{ss}", fmt.Sprintf("%02d", ss),
	)
	return r.Replace(format)
}
