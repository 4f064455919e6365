package fieldcrypt

import (
	"context"
	"encoding/json"
	"fmt"
)

// Serialize renders m as a JSON object with every encrypted attribute replaced
// by its plaintext. Attribute names are the model's JSON keys.
func (s *Service) Serialize(ctx context.Context, m Model) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: marshal %s: %w", m.ModelName(), err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("fieldcrypt: unmarshal %s: %w", m.ModelName(), err)
	}
	for attr, v := range s.PlainFields(ctx, m) {
		if _, present := out[attr]; present {
			out[attr] = v
		}
	}
	return out, nil
}

// SerializeAll applies Serialize to every element of ms.
func SerializeAll[M Model](ctx context.Context, s *Service, ms []M) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		obj, err := s.Serialize(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
