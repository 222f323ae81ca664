package reconcile

import (
	"encoding/json"

	"github.com/dirscansync/dirscansync/internal/model"
)

// mapToFile round-trips a generic document map into a model.File, since
// store.Client's view and lookup methods return documents as
// map[string]interface{} rather than typed values.
func mapToFile(m map[string]interface{}, out *model.File) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
