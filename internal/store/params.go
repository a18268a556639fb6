package store

import (
	"encoding/json"
	"fmt"

	"caaasearch/internal/searchspec"
)

// Params is the persisted form of a search's parameters: the upstream form
// fields flattened together with the retrieval caps and the planner's
// reasoning. Workers reconstruct the SearchSpec from this, so the stored
// shape is the source of truth once a search is created.
type Params struct {
	Form        map[string]string
	MaxMessages int
	MaxPages    int
	Reasoning   string
}

// ParamsFromSpec captures a spec for storage.
func ParamsFromSpec(spec searchspec.SearchSpec, reasoning string) Params {
	spec = spec.Normalize()
	return Params{
		Form:        spec.ToUpstreamForm(),
		MaxMessages: spec.MaxMessages,
		MaxPages:    spec.MaxPages,
		Reasoning:   reasoning,
	}
}

// Spec reconstructs the SearchSpec, resolving the form's ambiguous fields.
func (p Params) Spec() searchspec.SearchSpec {
	s := searchspec.FromUpstreamForm(p.Form)
	if p.MaxMessages > 0 {
		s.MaxMessages = p.MaxMessages
	}
	if p.MaxPages > 0 {
		s.MaxPages = p.MaxPages
	}
	return s
}

// MarshalJSON flattens the form fields and caps into a single object.
func (p Params) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(p.Form)+3)
	for k, v := range p.Form {
		m[k] = v
	}
	m["max_messages"] = p.MaxMessages
	m["max_pages"] = p.MaxPages
	if p.Reasoning != "" {
		m["reasoning"] = p.Reasoning
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the flattened object back into form fields and caps.
func (p *Params) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	p.Form = make(map[string]string)
	for k, v := range m {
		switch k {
		case "max_messages":
			if f, ok := v.(float64); ok {
				p.MaxMessages = int(f)
			}
		case "max_pages":
			if f, ok := v.(float64); ok {
				p.MaxPages = int(f)
			}
		case "reasoning":
			if s, ok := v.(string); ok {
				p.Reasoning = s
			}
		default:
			if s, ok := v.(string); ok {
				p.Form[k] = s
			}
		}
	}
	return nil
}

// Encode renders the params for the search_params column.
func (p Params) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode search params: %w", err)
	}
	return string(data), nil
}

// DecodeParams parses a search_params column value.
func DecodeParams(raw string) (Params, error) {
	var p Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Params{}, fmt.Errorf("failed to decode search params: %w", err)
	}
	return p, nil
}
