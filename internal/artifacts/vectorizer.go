package artifacts

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/james-bowman/sparse"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer is a pre-fitted term-frequency vectorizer.
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf,omitempty"`
	Lowercase   *bool          `json:"lowercase,omitempty"`
	SublinearTF bool           `json:"sublinear_tf,omitempty"`
	Norm        string         `json:"norm,omitempty"`

	features []string
}

func (v *Vectorizer) init() error {
	if len(v.Vocabulary) == 0 {
		return errors.New("vectorizer vocabulary is empty")
	}
	if v.IDF != nil && len(v.IDF) != len(v.Vocabulary) {
		return fmt.Errorf("%w: %d idf weights for %d terms", ErrShapeMismatch, len(v.IDF), len(v.Vocabulary))
	}
	switch v.Norm {
	case "", "l1", "l2":
	default:
		return fmt.Errorf("unsupported vectorizer norm %q", v.Norm)
	}

	v.features = make([]string, len(v.Vocabulary))
	for term, col := range v.Vocabulary {
		if col < 0 || col >= len(v.features) || v.features[col] != "" {
			return fmt.Errorf("vocabulary column %d of %q is out of range or duplicated", col, term)
		}
		v.features[col] = term
	}
	return nil
}

// Size is the vocabulary size, i.e. the column count of Transform output.
func (v *Vectorizer) Size() int {
	return len(v.features)
}

// FeatureNames returns terms ordered by column.
func (v *Vectorizer) FeatureNames() []string {
	out := make([]string, len(v.features))
	copy(out, v.features)
	return out
}

// Transform turns documents into a documents × vocabulary weight matrix.
// Documents without known terms produce empty rows. Entries of a row are
// stored in ascending column order.
func (v *Vectorizer) Transform(docs []string) *sparse.CSR {
	indptr := make([]int, 1, len(docs)+1)
	var (
		ind  []int
		data []float64
	)
	for _, doc := range docs {
		row := v.weigh(doc)
		cols := make([]int, 0, len(row))
		for col, w := range row {
			if w != 0 {
				cols = append(cols, col)
			}
		}
		sort.Ints(cols)
		for _, col := range cols {
			ind = append(ind, col)
			data = append(data, row[col])
		}
		indptr = append(indptr, len(ind))
	}
	return sparse.NewCSR(len(docs), len(v.features), indptr, ind, data)
}

func (v *Vectorizer) weigh(doc string) map[int]float64 {
	if v.Lowercase == nil || *v.Lowercase {
		doc = strings.ToLower(doc)
	}

	row := make(map[int]float64)
	for _, token := range tokenPattern.FindAllString(doc, -1) {
		if col, ok := v.Vocabulary[token]; ok {
			row[col]++
		}
	}
	for col, tf := range row {
		if v.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		if v.IDF != nil {
			tf *= v.IDF[col]
		}
		row[col] = tf
	}

	var norm float64
	switch v.Norm {
	case "l2":
		for _, w := range row {
			norm += w * w
		}
		norm = math.Sqrt(norm)
	case "l1":
		for _, w := range row {
			norm += math.Abs(w)
		}
	}
	if norm > 0 {
		for col := range row {
			row[col] /= norm
		}
	}
	return row
}
