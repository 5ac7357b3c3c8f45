package models

// Keyword tracks running counts for one search keyword within a research.
// Counts only ever grow; updates are atomic increments, not overwrites.
type Keyword struct {
	ResearchID      string `json:"research_id"`
	SearchKeyword   string `json:"search_keyword"`
	AnalysedResults int    `json:"analysed_results"`
	RelevantResults int    `json:"relevant_results"`
}
