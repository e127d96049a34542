package domain

// Exemplar is one labeled reference document of the training corpus.
type Exemplar struct {
	ID             string    `json:"id"`
	Label          Label     `json:"label"`
	Vector         []float32 `json:"-"`
	SourceFilename string    `json:"source_filename"`
	Snippet        string    `json:"snippet"`
}

type ExemplarMatch struct {
	ExemplarID     string  `json:"exemplar_id"`
	Label          Label   `json:"label"`
	SourceFilename string  `json:"source_filename"`
	Score          float64 `json:"score"`
}

type CorpusStats struct {
	Exemplars int           `json:"exemplars"`
	Skipped   int           `json:"skipped"`
	ByLabel   map[Label]int `json:"by_label"`
}
