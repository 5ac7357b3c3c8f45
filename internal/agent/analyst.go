package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tomasbielik/precedent/internal/docs"
	"github.com/tomasbielik/precedent/internal/models"
)

const purposePrompt = `You are part of a legal research system that finds
precedent in Slovak court decisions. Users describe a legal problem; the
system searches a decision index, reads candidate decisions and synthesizes
a research report.`

// Scope is the research frame established before any searching happens.
// Every later stage receives it as context.
type Scope struct {
	ProblemDescription string `json:"problem_description"`
	Question           string `json:"question"`
}

// Classification is the analyst's verdict on one court decision.
type Classification struct {
	IsRelevant      bool     `json:"is_relevant"`
	Metadata        string   `json:"metadata"`
	Summary         string   `json:"summary"`
	RelevantParts   []string `json:"relevant_parts,omitempty"`
	LegalProvisions []string `json:"legal_provisions,omitempty"`
}

// Analyst drives every LLM-backed decision in the research pipeline.
type Analyst struct {
	gen Generator
}

// NewAnalyst creates an analyst on the given generator.
func NewAnalyst(gen Generator) *Analyst {
	return &Analyst{gen: gen}
}

// Scope turns the user's free-form query into a problem description and a
// focused research question.
func (a *Analyst) Scope(ctx context.Context, query string) (Scope, error) {
	system := purposePrompt + `

Analyze the user's input and frame the research: describe the underlying
legal problem and formulate the single question the research must answer.

Respond with JSON only:
{"problem_description": "...", "question": "..."}`

	out, err := a.gen.GenerateWithSystem(ctx, system, query)
	if err != nil {
		return Scope{}, fmt.Errorf("scope: %w", err)
	}

	var scope Scope
	if err := parseJSON(out, &scope); err != nil {
		return Scope{}, fmt.Errorf("scope: %w", err)
	}
	if scope.ProblemDescription == "" || scope.Question == "" {
		return Scope{}, fmt.Errorf("scope: incomplete response")
	}
	return scope, nil
}

// PlanKeywords generates the next batch of semantic search queries, informed
// by what previous keywords found. An empty batch means the analyst sees no
// more promising angles and the search phase should end.
func (a *Analyst) PlanKeywords(ctx context.Context, scope Scope, relevant []models.ResearchTrace, history []models.Keyword) ([]string, error) {
	system := purposePrompt + `

You generate semantic search queries against a Slovak court decision index.
Review the keyword history: which queries found relevant decisions, which
found nothing. Start with conceptual natural-language descriptions of the
legal situation, then move toward doctrine, fact patterns and procedure as
the history grows. Do not repeat a keyword from the history. Queries are in
Slovak.

Output at most 2 new queries per batch. If the history shows the reasonable
possibilities are exhausted, output an empty list.

Respond with JSON only:
{"keywords": ["...", "..."]}`

	var sb strings.Builder
	writeScope(&sb, scope)

	sb.WriteString("\nKeyword history:\n")
	if len(history) == 0 {
		sb.WriteString("(no keywords tried yet)\n")
	}
	for _, k := range history {
		fmt.Fprintf(&sb, "- %q: %d analysed, %d relevant\n",
			k.SearchKeyword, k.AnalysedResults, k.RelevantResults)
	}

	sb.WriteString("\nRelevant decisions found so far:\n")
	if len(relevant) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, t := range relevant {
		fmt.Fprintf(&sb, "- %s (found via %q): %s\n", t.FileName, t.SearchKeyword, t.Summary)
		for _, p := range t.LegalProvisions {
			fmt.Fprintf(&sb, "  provision: %s\n", p)
		}
	}

	out, err := a.gen.GenerateWithSystem(ctx, system, sb.String())
	if err != nil {
		return nil, fmt.Errorf("plan keywords: %w", err)
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := parseJSON(out, &parsed); err != nil {
		return nil, fmt.Errorf("plan keywords: %w", err)
	}

	// The batch size is a hard cap, not a suggestion.
	if len(parsed.Keywords) > 2 {
		parsed.Keywords = parsed.Keywords[:2]
	}
	return parsed.Keywords, nil
}

// SelectResults triages raw search hits and returns the file names worth
// reading in full. Vague hits are included: missing a relevant precedent
// costs more than reading an irrelevant one.
func (a *Analyst) SelectResults(ctx context.Context, scope Scope, results []docs.SearchResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}

	system := purposePrompt + `

You review search hits from the decision index and pick which decisions to
read in full. Include a hit when its content suggests relevance to the
research scope, and also when it is too vague to rule out. Exclude only hits
that clearly have nothing to do with the scope.

Respond with JSON only:
{"pdf_file_names": ["..."]}`

	var sb strings.Builder
	writeScope(&sb, scope)
	sb.WriteString("\nSearch hits:\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "- file: %s\n", r.FileName)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "  snippet: %s\n", r.Snippet)
		}
		if len(r.Metadata) > 0 {
			meta, _ := json.Marshal(r.Metadata)
			fmt.Fprintf(&sb, "  metadata: %s\n", meta)
		}
	}

	out, err := a.gen.GenerateWithSystem(ctx, system, sb.String())
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}

	var parsed struct {
		FileNames []string `json:"pdf_file_names"`
	}
	if err := parseJSON(out, &parsed); err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	return parsed.FileNames, nil
}

// ClassifyDocument reads one court decision and decides whether it bears on
// the research scope. A decision that argues against the user's position is
// still relevant.
func (a *Analyst) ClassifyDocument(ctx context.Context, scope Scope, fileName string, doc []byte) (Classification, error) {
	system := purposePrompt + `

You will be given a court decision and a research scope. Read the decision
and decide if it is relevant to the scope. It is relevant even if it argues
against the research context. Be strict.

Slovak court decisions generally have three parts: procedural history, legal
assessment and the court's reasoning. The reasoning carries the most weight.

Respond with JSON only:
{
  "is_relevant": true,
  "metadata": "court, case number, date",
  "summary": "one sentence on the matter of the case",
  "relevant_parts": ["word-by-word passages, if relevant"],
  "legal_provisions": ["linked provisions, e.g. § 195 of the Labour Code, if relevant"]
}`

	var sb strings.Builder
	writeScope(&sb, scope)
	fmt.Fprintf(&sb, "\nDecision file: %s\n", fileName)

	out, err := a.gen.GenerateWithDocument(ctx, system, sb.String(), "application/pdf", doc)
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", fileName, err)
	}

	var c Classification
	if err := parseJSON(out, &c); err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", fileName, err)
	}
	return c, nil
}

// WriteReport synthesizes the final research report from the relevant
// decisions. The report is Slovak-language Markdown.
func (a *Analyst) WriteReport(ctx context.Context, scope Scope, relevant []models.ResearchTrace) (string, error) {
	system := purposePrompt + `

Write the research conclusion from the findings below. Structure: restate
the research question, lay out the legal framework, analyse the court
decisions, explain how courts apply the law, conclude with a direct answer,
and list references. Cite decisions with court, case number and date; cite
provisions by law and paragraph. Target roughly one page. Disregard any
decision that looks irrelevant despite being in the findings.

Respond in Slovak, in Markdown, without wrapping the answer in a code fence.`

	var sb strings.Builder
	writeScope(&sb, scope)
	sb.WriteString("\nRelevant decisions:\n")
	for _, t := range relevant {
		fmt.Fprintf(&sb, "\n## %s\n", t.FileName)
		fmt.Fprintf(&sb, "metadata: %s\n", t.Metadata)
		fmt.Fprintf(&sb, "summary: %s\n", t.Summary)
		for _, p := range t.RelevantParts {
			fmt.Fprintf(&sb, "passage: %s\n", p)
		}
		for _, p := range t.LegalProvisions {
			fmt.Fprintf(&sb, "provision: %s\n", p)
		}
	}

	out, err := a.gen.GenerateWithSystem(ctx, system, sb.String())
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func writeScope(sb *strings.Builder, scope Scope) {
	fmt.Fprintf(sb, "Research scope:\nproblem: %s\nquestion: %s\n",
		scope.ProblemDescription, scope.Question)
}

// parseJSON decodes a model response that may wrap its JSON in a Markdown
// code fence or surround it with prose.
func parseJSON(out string, v any) error {
	s := strings.TrimSpace(out)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
