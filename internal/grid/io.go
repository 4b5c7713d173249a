package grid

import (
	"encoding/json"
	"fmt"
	"io"
)

// Load decodes a net from JSON (pandapower-like table names) and
// validates it.
func Load(r io.Reader) (*Net, error) {
	var n Net
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Save writes the element tables of n as indented JSON.
func Save(w io.Writer, n *Net) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(n)
}
