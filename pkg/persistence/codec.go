package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
)

// Encode serializes dict as a JSON object. Values without a data
// representation (functions, handles) are skipped.
func Encode(dict domain.Dict) ([]byte, error) {
	out := make(map[string]any, len(dict))
	for k, v := range dict {
		n, err := lang.Normalize(v)
		if err != nil {
			continue
		}
		out[k] = n
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dict: %w", err)
	}
	return data, nil
}

// Decode parses a dictionary written by Encode. Integers stay integers.
func Decode(data []byte) (domain.Dict, error) {
	v, err := lang.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal dict: %w", err)
	}
	switch m := v.(type) {
	case nil:
		return domain.Dict{}, nil
	case map[string]any:
		return domain.Dict(m), nil
	}
	return nil, fmt.Errorf("failed to unmarshal dict: got %T", v)
}
