// Package display formats pipeline events and results for the
// terminal.
package display

import (
	"fmt"
	"strings"

	"mathforge/internal/cache"
	"mathforge/internal/observe"
	"mathforge/internal/state"
)

const separator = "--------------------------------------------------"

// FormatEvent renders one stream event as a single line.
func FormatEvent(ev observe.Event) string {
	if ev.Terminal {
		if ev.Status == state.StatusCompleted {
			return fmt.Sprintf("[Job %s COMPLETED]", ev.JobID)
		}
		return fmt.Sprintf("[Job %s FAILED] %s", ev.JobID, ev.Reason)
	}
	if ev.Step == nil {
		return ""
	}
	s := ev.Step
	var flags []string
	if s.Cached {
		flags = append(flags, "cached")
	}
	if s.RetryIndex > 0 {
		flags = append(flags, fmt.Sprintf("retry %d", s.RetryIndex))
	}
	if s.Err != "" {
		flags = append(flags, "error: "+firstLine(s.Err))
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " (" + strings.Join(flags, ", ") + ")"
	}
	return fmt.Sprintf("  %-14s %5dms%s", s.Agent, s.DurationMs, suffix)
}

// FormatResult renders a terminal pipeline state.
func FormatResult(st state.State) string {
	var sb strings.Builder
	sb.WriteString(separator + "\n")
	sb.WriteString(fmt.Sprintf("Job %s: %s\n", st.JobID, st.Status))
	if st.FailReason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", st.FailReason))
	}
	sb.WriteString(fmt.Sprintf("Request: grade %s, %s, %s, %s\n",
		st.Request.Grade, st.Request.Topic, st.Request.MaterialType, st.Request.Difficulty))
	if st.Verification.Checked > 0 {
		sb.WriteString(fmt.Sprintf("Claims: %d checked, %d correct, %d incorrect, %d unverifiable\n",
			st.Verification.Checked, st.Verification.Correct,
			st.Verification.Incorrect, st.Verification.Unverifiable))
	}
	if st.ArtifactPath != "" {
		sb.WriteString(fmt.Sprintf("Artifact: %s\n", st.ArtifactPath))
	}
	sb.WriteString(fmt.Sprintf("Steps: %d, repairs: %d draft + %d compile\n",
		len(st.Steps), st.DraftRepairs, st.CompileFixRepairs))
	sb.WriteString(fmt.Sprintf("Tokens: %d, duration: %dms\n", st.TotalTokens, st.TotalDurationMs))
	sb.WriteString(separator)
	return sb.String()
}

// FormatStats renders cache statistics.
func FormatStats(s cache.Stats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Cache: %d entries, %d hits, %d misses, %d evictions\n",
		s.Entries, s.Hits, s.Misses, s.Evictions))
	for tier, n := range s.ByTier {
		sb.WriteString(fmt.Sprintf("  %s: %d\n", tier, n))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatEstimate renders a pre-generation token estimate.
func FormatEstimate(e cache.TokenEstimate) string {
	return fmt.Sprintf("Estimated tokens: %d in + %d out = %d total",
		e.InputTokens, e.OutputTokens, e.TotalTokens)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
