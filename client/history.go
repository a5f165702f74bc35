package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeOutput is what a single output node produced.
type NodeOutput struct {
	NodeID string       `json:"-"`
	Images []DataOutput `json:"images"`
}

// HistoryStatus is the execution status reported alongside the outputs.
type HistoryStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// HistoryItem is the record of a finished prompt. Outputs keep the order in
// which the server listed the output nodes.
type HistoryItem struct {
	PromptID string
	Outputs  []NodeOutput
	Status   *HistoryStatus
}

func (h *HistoryItem) UnmarshalJSON(b []byte) error {
	var temp struct {
		Outputs json.RawMessage `json:"outputs"`
		Status  *HistoryStatus  `json:"status"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}
	h.Status = temp.Status
	outputs, err := decodeOrderedOutputs(temp.Outputs)
	if err != nil {
		return fmt.Errorf("outputs: %w", err)
	}
	h.Outputs = outputs
	return nil
}

// Images returns every image of every output node, in history order.
func (h *HistoryItem) Images() []DataOutput {
	retv := make([]DataOutput, 0)
	for _, o := range h.Outputs {
		retv = append(retv, o.Images...)
	}
	return retv
}

// decodeOrderedOutputs walks the outputs object token by token so the order
// of node IDs is preserved; a map would lose it.
func decodeOrderedOutputs(raw json.RawMessage) ([]NodeOutput, error) {
	retv := make([]NodeOutput, 0)
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return retv, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		nodeID, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected node id, got %v", tok)
		}
		out := NodeOutput{}
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeID, err)
		}
		out.NodeID = nodeID
		retv = append(retv, out)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return retv, nil
}
