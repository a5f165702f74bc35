package graphapi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Node is a single processing step of an API format workflow.
type Node struct {
	ClassType string
	Inputs    map[string]Value
	// Meta holds the optional "_meta" object untouched.
	Meta json.RawMessage
	// any other keys found on the node are passed through
	extra map[string]json.RawMessage
}

func (n *Node) UnmarshalJSON(b []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	n.Inputs = make(map[string]Value)
	if raw, ok := fields["inputs"]; ok {
		if err := json.Unmarshal(raw, &n.Inputs); err != nil {
			return fmt.Errorf("inputs: %w", err)
		}
		delete(fields, "inputs")
	}
	if raw, ok := fields["class_type"]; ok {
		if err := json.Unmarshal(raw, &n.ClassType); err != nil {
			return fmt.Errorf("class_type: %w", err)
		}
		delete(fields, "class_type")
	}
	if raw, ok := fields["_meta"]; ok {
		n.Meta = raw
		delete(fields, "_meta")
	}
	if len(fields) > 0 {
		n.extra = fields
	}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(n.extra)+3)
	for k, v := range n.extra {
		out[k] = v
	}
	inputs := n.Inputs
	if inputs == nil {
		inputs = map[string]Value{}
	}
	out["inputs"] = inputs
	out["class_type"] = n.ClassType
	if len(n.Meta) > 0 {
		out["_meta"] = n.Meta
	}
	return json.Marshal(out)
}

// GetInput returns the named input and whether it is present.
func (n *Node) GetInput(name string) (Value, bool) {
	v, ok := n.Inputs[name]
	return v, ok
}

// SetInput sets a single input, creating the input map if needed.
func (n *Node) SetInput(name string, v Value) {
	if n.Inputs == nil {
		n.Inputs = make(map[string]Value)
	}
	n.Inputs[name] = v
}

// Title is the display title from "_meta", or "" when there is none.
func (n *Node) Title() string {
	var meta struct {
		Title string `json:"title"`
	}
	if len(n.Meta) == 0 || json.Unmarshal(n.Meta, &meta) != nil {
		return ""
	}
	return meta.Title
}

func (n *Node) clone() *Node {
	c := &Node{
		ClassType: n.ClassType,
		Inputs:    make(map[string]Value, len(n.Inputs)),
		Meta:      n.Meta,
	}
	for k, v := range n.Inputs {
		c.Inputs[k] = v
	}
	if n.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(n.extra))
		for k, v := range n.extra {
			c.extra[k] = v
		}
	}
	return c
}

// Workflow is an API format workflow: a flat object keyed by node ID.
// Node IDs are caller supplied strings and need not be sequential.
type Workflow map[string]*Node

// NewWorkflowFromJsonReader creates a new workflow from the data read from an io.Reader
func NewWorkflowFromJsonReader(r io.Reader) (Workflow, error) {
	wf := make(Workflow)
	if err := json.NewDecoder(r).Decode(&wf); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	for id, n := range wf {
		if n == nil {
			return nil, fmt.Errorf("decoding workflow: node %q is null", id)
		}
	}
	return wf, nil
}

// NewWorkflowFromJsonFile creates a new workflow from a JSON file
func NewWorkflowFromJsonFile(path string) (Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return NewWorkflowFromJsonReader(file)
}

// NewWorkflowFromJsonString creates a new workflow from a JSON string
func NewWorkflowFromJsonString(s string) (Workflow, error) {
	return NewWorkflowFromJsonReader(strings.NewReader(s))
}

// NewWorkflowFromFile loads a workflow from either a .png file carrying an
// embedded prompt or a JSON file.
func NewWorkflowFromFile(path string) (Workflow, error) {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return NewWorkflowFromPNGFile(path)
	}
	return NewWorkflowFromJsonFile(path)
}

// GetNodeById returns the node with the given ID, or nil.
func (w Workflow) GetNodeById(id string) *Node {
	return w[id]
}

// NodeIDs returns the node IDs in sorted order.
func (w Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy that can be patched without touching w.
func (w Workflow) Clone() Workflow {
	c := make(Workflow, len(w))
	for id, n := range w {
		c[id] = n.clone()
	}
	return c
}
