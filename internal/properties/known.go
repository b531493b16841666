package properties

import (
	"encoding/json"
	"strings"

	"github.com/springcomet/kabalot/internal/common"
)

var knownFileIDsSchema = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string"},
}

// KnownFiles is the ordered set of document ids already ingested. It is a value:
// With returns a new set and never modifies the receiver.
type KnownFiles struct {
	ids   []string
	index map[string]struct{}
}

// NewKnownFiles builds a set from ids, dropping duplicates and keeping first-seen order.
func NewKnownFiles(ids ...string) KnownFiles {
	return KnownFiles{}.With(ids...)
}

// ParseKnownFiles decodes the stored knownFileIDs property. Empty means no documents yet.
func ParseKnownFiles(raw string) (KnownFiles, error) {
	if strings.TrimSpace(raw) == "" {
		return KnownFiles{}, nil
	}
	if err := common.ValidateJSONAgainstSchema(knownFileIDsSchema, []byte(raw)); err != nil {
		return KnownFiles{}, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return KnownFiles{}, err
	}
	return NewKnownFiles(ids...), nil
}

func (k KnownFiles) Contains(id string) bool {
	_, ok := k.index[id]
	return ok
}

func (k KnownFiles) Len() int { return len(k.ids) }

// IDs returns a copy of the ids in insertion order.
func (k KnownFiles) IDs() []string {
	return append([]string{}, k.ids...)
}

// With returns the union of k and ids.
func (k KnownFiles) With(ids ...string) KnownFiles {
	out := KnownFiles{
		ids:   make([]string, len(k.ids), len(k.ids)+len(ids)),
		index: make(map[string]struct{}, len(k.ids)+len(ids)),
	}
	copy(out.ids, k.ids)
	for _, id := range k.ids {
		out.index[id] = struct{}{}
	}
	for _, id := range ids {
		if _, dup := out.index[id]; dup {
			continue
		}
		out.index[id] = struct{}{}
		out.ids = append(out.ids, id)
	}
	return out
}

// Equal reports whether both sets hold the same ids in the same order.
func (k KnownFiles) Equal(o KnownFiles) bool {
	if len(k.ids) != len(o.ids) {
		return false
	}
	for i := range k.ids {
		if k.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array of strings; an empty set is "[]".
func (k KnownFiles) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.IDs())
}

func (k *KnownFiles) UnmarshalJSON(b []byte) error {
	parsed, err := ParseKnownFiles(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
