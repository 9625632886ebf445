package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tx-ledger/internal/types"
)

// decodeRecords parses a JSON array of record objects. Anything else, including
// an array holding a non-object element, is rejected as a whole.
func decodeRecords(data []byte) ([]types.Transaction, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("payload is not a JSON array: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is not a JSON array")
	}

	records := make([]types.Transaction, 0, len(raw))
	for i, elem := range raw {
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		var tx types.Transaction
		if err := json.Unmarshal(trimmed, &tx); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		records = append(records, tx)
	}
	return records, nil
}
