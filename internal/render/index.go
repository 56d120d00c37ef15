package render

import (
	"encoding/json"

	"github.com/phobologic/cratemap/internal/model"
)

// IndexEntry is one lookup row of index.json.
type IndexEntry struct {
	File       string `json:"file"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	Kind       string `json:"kind"`
	Visibility string `json:"visibility"`
}

// Index renders index.json: fully qualified item path to source
// location, with paths sorted.
func Index(crates []model.Crate) ([]byte, error) {
	index := map[string]IndexEntry{}
	for i := range crates {
		for _, m := range crates[i].Root.All() {
			for _, it := range m.Items {
				index[model.ItemPath(m.Path, it)] = IndexEntry{
					File:       it.File,
					LineStart:  it.LineStart,
					LineEnd:    it.LineEnd,
					Kind:       itemKindLabel(it),
					Visibility: string(it.Visibility),
				}
			}
		}
	}
	out, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// itemKindLabel is the index's kind string; impl blocks spell out the
// trait and type.
func itemKindLabel(it model.Item) string {
	if it.Kind == model.Impl {
		return "impl " + it.Name
	}
	return string(it.Kind)
}
