package commands

import (
	"encoding/json"
	"fmt"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/pkg/core"
)

// decodeEdits accepts a list of edits or a single edit object.
func decodeEdits(raw json.RawMessage) ([]draftflow.Edit, error) {
	var edits []draftflow.Edit
	if err := json.Unmarshal(raw, &edits); err == nil {
		return edits, nil
	}
	var one draftflow.Edit
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("%w: edits must be an edit or a list of edits: %v", core.ErrInvalidEdit, err)
	}
	return []draftflow.Edit{one}, nil
}
