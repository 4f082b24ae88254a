package pipeline

import (
	"fmt"
	"strings"

	"mathforge/internal/curriculum"
	"mathforge/internal/state"
)

const planSystem = "You are an expert mathematics teacher planning curriculum-aligned teaching material. " +
	"Respond ONLY with a numbered plan. No extra text."

const draftSystem = "You are an expert mathematics author. You write complete LaTeX document BODIES " +
	"(no preamble, no \\documentclass, no \\begin{document}). " +
	"Every equation you write must be mathematically correct. " +
	"Respond ONLY with the LaTeX body. No extra text, no markdown fences."

const compileFixSystem = "You are a LaTeX repair specialist. You receive a document body and a list of " +
	"compiler errors. Fix the errors WITHOUT changing any mathematical content. " +
	"Respond ONLY with the full corrected LaTeX body."

const qualitySystem = "You are a pedagogical reviewer. Improve clarity, exercise progression, and wording " +
	"of the LaTeX body you receive. Do NOT change any mathematical content: every equation, " +
	"every number, every solution stays exactly as it is. " +
	"Respond ONLY with the full revised LaTeX body."

const layoutSystem = "You are a typesetting reviewer. Improve spacing, sectioning, and box usage of the " +
	"LaTeX body you receive. Do NOT change any mathematical content or any wording of exercises. " +
	"Respond ONLY with the full revised LaTeX body."

func buildPlanPrompt(req state.Request, bounds curriculum.Boundaries) string {
	var sb strings.Builder

	sb.WriteString("Create a teaching plan for the following material.\n\n")
	sb.WriteString(fmt.Sprintf("Grade: %s\nTopic: %s\nMaterial type: %s\nDifficulty: %s\nExercises: %d\n",
		req.Grade, req.Topic, req.MaterialType, req.Difficulty, req.NumExercises))
	if req.IncludeTheory {
		sb.WriteString("Include a theory section.\n")
	}
	if req.IncludeExamples {
		sb.WriteString("Include worked examples.\n")
	}
	if req.IncludeSolutions {
		sb.WriteString("Include a solutions section.\n")
	}
	sb.WriteString("\n")
	sb.WriteString(bounds.FormatForPrompt())
	if lang := curriculum.LanguageInstructions(req.LanguageLevel); lang != "" {
		sb.WriteString("\n")
		sb.WriteString(lang)
		sb.WriteString("\n")
	}
	if req.ExtraInstructions != "" {
		sb.WriteString("\nTeacher's extra instructions:\n")
		sb.WriteString(req.ExtraInstructions)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRULES:\n")
	sb.WriteString("1) List the concepts covered, in teaching order.\n")
	sb.WriteString("2) For each exercise, state the concept it trains and its difficulty.\n")
	sb.WriteString("3) Stay strictly inside the allowed concepts above.\n")
	return sb.String()
}

func buildDraftPrompt(st *state.State, repairReport string) string {
	var sb strings.Builder

	sb.WriteString("Write the complete LaTeX body for this material.\n\n")
	sb.WriteString("PLAN:\n")
	sb.WriteString(st.Plan)
	sb.WriteString("\n\n")
	if lang := curriculum.LanguageInstructions(st.Request.LanguageLevel); lang != "" {
		sb.WriteString(lang)
		sb.WriteString("\n\n")
	}
	sb.WriteString("RULES:\n")
	sb.WriteString("1) Wrap every exercise in \\begin{taskbox}{Exercise N} ... \\end{taskbox}.\n")
	sb.WriteString("2) Wrap theory in \\begin{theorybox}{...} ... \\end{theorybox}.\n")
	if st.Request.IncludeSolutions {
		sb.WriteString("3) End with \\section*{Solutions}; label answers \\textbf{Exercise N} with sub-answers a), b), ...\n")
	}
	sb.WriteString("4) Every equation must be arithmetically correct. Double-check each one.\n")

	if repairReport != "" {
		sb.WriteString("\nYour previous draft contained errors. It is included below, followed by the error report.\n\n")
		sb.WriteString("PREVIOUS DRAFT:\n")
		sb.WriteString(st.DocumentSource)
		sb.WriteString("\n\n")
		sb.WriteString(repairReport)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildCompileFixPrompt(st *state.State, errorReport string) string {
	var sb strings.Builder

	sb.WriteString("The following LaTeX body fails to compile.\n\n")
	sb.WriteString("DOCUMENT BODY:\n")
	sb.WriteString(st.DocumentSource)
	sb.WriteString("\n\n")
	sb.WriteString(errorReport)
	sb.WriteString("\n")
	return sb.String()
}

func buildPolishPrompt(st *state.State) string {
	var sb strings.Builder

	sb.WriteString("DOCUMENT BODY:\n")
	sb.WriteString(st.DocumentSource)
	sb.WriteString("\n")
	return sb.String()
}

// stripMarkdownFences removes a surrounding ```...``` block models
// sometimes wrap their output in despite instructions.
func stripMarkdownFences(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	// Drop a language tag on the opening fence.
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		first := strings.TrimSpace(out[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, " \\{") {
			out = out[i+1:]
		}
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
