package record

import "encoding/json"

// Properties is a complete destination record keyed by property name.
// encoding/json writes map keys sorted, so the encoding is deterministic.
type Properties map[string]Value

// JSON encodes the properties.
func (p Properties) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// Native converts every property for document stores.
func (p Properties) Native() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Native()
	}
	return out
}
