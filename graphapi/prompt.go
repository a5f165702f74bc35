package graphapi

// Prompt is the data that is enqueued to an instance of ComfyUI
type Prompt struct {
	ClientID string   `json:"client_id,omitempty"`
	Nodes    Workflow `json:"prompt"`
}

// NewPrompt wraps a workflow for submission on behalf of clientID.
func NewPrompt(w Workflow, clientID string) *Prompt {
	return &Prompt{
		ClientID: clientID,
		Nodes:    w,
	}
}
