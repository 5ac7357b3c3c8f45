package models

import "time"

// ResearchTrace memoizes the classification of one court decision within a
// research. Keyed by (research_id, file_name); immutable once written, so a
// decision is analysed by the LLM at most once per research.
type ResearchTrace struct {
	ResearchID      string    `json:"research_id"`
	SearchKeyword   string    `json:"search_keyword"`
	FileName        string    `json:"file_name"`
	IsRelevant      bool      `json:"is_relevant"`
	Metadata        string    `json:"metadata"`
	Summary         string    `json:"summary"`
	RelevantParts   []string  `json:"relevant_parts,omitempty"`
	LegalProvisions []string  `json:"legal_provisions,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
