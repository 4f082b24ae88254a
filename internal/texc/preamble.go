package texc

// standardPreamble is the fixed document preamble. Agents author body
// content only; the adapter wraps it before compilation so every
// document compiles against the same package set.
const standardPreamble = `\documentclass[a4paper,11pt]{article}
\usepackage[utf8]{inputenc}
\usepackage[T1]{fontenc}
\usepackage{amsmath}
\usepackage{amssymb}
\usepackage{geometry}
\usepackage{enumitem}
\usepackage{tcolorbox}
\usepackage{fancyhdr}
\geometry{margin=2.2cm}
\pagestyle{fancy}
\fancyhf{}
\fancyfoot[C]{\thepage}
\newtcolorbox{taskbox}[1]{colback=blue!3!white,colframe=blue!40!black,title={#1}}
\newtcolorbox{theorybox}[1]{colback=gray!5!white,colframe=gray!60!black,title={#1}}
`

// WrapDocument wraps body content with the standard preamble, producing
// a complete compilable document.
func WrapDocument(body string) string {
	return standardPreamble +
		"\\begin{document}\n\\thispagestyle{plain}\n\n" +
		body +
		"\n\n\\end{document}\n"
}
