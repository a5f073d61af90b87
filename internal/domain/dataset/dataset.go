// Package dataset holds the BEIR-style benchmark data model: corpus documents,
// queries and relevance judgments.
package dataset

// Document is a single searchable code snippet.
type Document struct {
	ID       string         `json:"_id"`
	Text     string         `json:"text"`
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata"`
}

// Query is a natural-language search query.
type Query struct {
	ID       string         `json:"_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Dataset is one loaded benchmark split.
type Dataset struct {
	Name    string
	Corpus  []Document
	Queries []Query
	Qrels   Qrels
}

// CorpusIDs returns document ids in corpus order.
func (d *Dataset) CorpusIDs() []string {
	ids := make([]string, len(d.Corpus))
	for i, doc := range d.Corpus {
		ids[i] = doc.ID
	}
	return ids
}

// QueryIDs returns query ids in query file order.
func (d *Dataset) QueryIDs() []string {
	ids := make([]string, len(d.Queries))
	for i, q := range d.Queries {
		ids[i] = q.ID
	}
	return ids
}

// CorpusTexts returns document texts in corpus order.
func (d *Dataset) CorpusTexts() []string {
	texts := make([]string, len(d.Corpus))
	for i, doc := range d.Corpus {
		texts[i] = doc.Text
	}
	return texts
}

// QueryTexts returns query texts in query file order.
func (d *Dataset) QueryTexts() []string {
	texts := make([]string, len(d.Queries))
	for i, q := range d.Queries {
		texts[i] = q.Text
	}
	return texts
}
