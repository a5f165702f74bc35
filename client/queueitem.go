package client

// QueuedPrompt is the server's answer to a prompt submission. PromptID is
// the handle used to poll the history.
type QueuedPrompt struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}
