package texc

import (
	"regexp"
	"strconv"
	"strings"

	"mathforge/internal/state"
)

var (
	errLineRe = regexp.MustCompile(`^!\s*(.+)$`)
	srcLineRe = regexp.MustCompile(`^l\.(\d+)\s*(.*)$`)
)

const maxErrors = 20

// parseDiagnostics recovers (line, message) pairs from the compiler's
// log stream. An error marker ("! ...") is paired with the next source
// line marker ("l.N ..."); markers with no recoverable line number are
// reported at line 0 with the message passed through verbatim.
func parseDiagnostics(log string) []state.CompileError {
	var errs []state.CompileError
	var pending string

	flush := func(line int) {
		if pending == "" {
			return
		}
		errs = append(errs, state.CompileError{Line: line, Message: pending})
		pending = ""
	}

	for _, raw := range strings.Split(log, "\n") {
		line := strings.TrimRight(raw, "\r")
		if m := errLineRe.FindStringSubmatch(line); m != nil {
			flush(0)
			pending = strings.TrimSpace(m[1])
			continue
		}
		if m := srcLineRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			if pending == "" {
				pending = strings.TrimSpace(m[2])
				if pending == "" {
					pending = "error near this line"
				}
			}
			flush(n)
		}
		if len(errs) >= maxErrors {
			return errs
		}
	}
	flush(0)
	return errs
}

// FormatErrorsForPrompt renders compile errors into instructions for
// the fix pass.
func FormatErrorsForPrompt(result state.CompileResult) string {
	if result.Success {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== TYPESETTING ERRORS ===\n")
	sb.WriteString("The document failed to compile. Errors:\n\n")
	for i, e := range result.Errors {
		if i >= 10 {
			break
		}
		if e.Line > 0 {
			sb.WriteString("ERROR (line ")
			sb.WriteString(strconv.Itoa(e.Line))
			sb.WriteString("): ")
		} else {
			sb.WriteString("ERROR: ")
		}
		sb.WriteString(e.Message)
		sb.WriteString("\n")
	}
	if result.LogExcerpt != "" {
		sb.WriteString("\nEnd of compiler log:\n")
		sb.WriteString(result.LogExcerpt)
		sb.WriteString("\n")
	}
	sb.WriteString("\nFIX ALL ERRORS and return the complete corrected document.")
	return sb.String()
}
