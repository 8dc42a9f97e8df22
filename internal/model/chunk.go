package model

// Chunk is the unit of retrieval: a bounded window of normalized page text
// tagged with the section headers in force where it was cut.
type Chunk struct {
	ID      string `json:"id"`
	Page    int    `json:"page"`
	Context string `json:"context"`
	Text    string `json:"text"`
}

// PlanEntry is one table-of-contents line: a section title and the page it
// starts on. Entries are kept in scan order and never linked back to chunks.
type PlanEntry struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// RetrievalResult pairs a chunk with its similarity to the query embedding.
// Score is cosine similarity over unit vectors, so it stays within [-1, 1].
type RetrievalResult struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Page  int     `json:"page"`
	Score float32 `json:"score"`
}
