package dataset

import "sort"

// Qrels maps query id -> document id -> relevance grade.
type Qrels map[string]map[string]int

// Add records a judgment, replacing any previous grade for the pair.
func (q Qrels) Add(queryID, docID string, score int) {
	docs, ok := q[queryID]
	if !ok {
		docs = make(map[string]int)
		q[queryID] = docs
	}
	docs[docID] = score
}

// Has reports whether the query has any judgments.
func (q Qrels) Has(queryID string) bool {
	_, ok := q[queryID]
	return ok
}

// Relevant reports whether docID is judged relevant (grade > 0) for queryID.
func (q Qrels) Relevant(queryID, docID string) bool {
	return q[queryID][docID] > 0
}

// QueryIDs returns judged query ids sorted lexicographically.
func (q Qrels) QueryIDs() []string {
	ids := make([]string, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pairs returns the number of (query, document) judgments.
func (q Qrels) Pairs() int {
	n := 0
	for _, docs := range q {
		n += len(docs)
	}
	return n
}
