package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/richinsley/comfycanvas/graphapi"
)

/*
Routes used by this client:

@routes.get("/system_stats")
@routes.get("/history/{prompt_id}")
@routes.get("/view")
@routes.get("/ws")

@routes.post("/prompt")
@routes.post("/upload/image")
*/

// do executes req and returns the body of a 2xx response. For other status
// codes a *StatusError is returned, carrying the server's error message when
// the body has the {"error": {"message": ...}} shape.
func (c *ComfyClient) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
		perror := &PromptErrorMessage{}
		if json.Unmarshal(body, perror) == nil && perror.Error.Message != "" {
			serr.Message = perror.Error.Message
			if len(perror.NodeErrors) > 0 {
				slog.Error("server reported node errors", "op", op, "node_errors", perror.NodeErrors)
			}
		}
		return nil, serr
	}
	return body, nil
}

func (c *ComfyClient) get(ctx context.Context, op string, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, err
	}
	return c.do(op, req)
}

// GetSystemStats retrieves the server's system and device information.
func (c *ComfyClient) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	body, err := c.get(ctx, "system stats", "/system_stats", nil)
	if err != nil {
		return nil, err
	}
	retv := &SystemStats{}
	if err := json.Unmarshal(body, retv); err != nil {
		return nil, &ProtocolError{Op: "system stats", Err: err}
	}
	return retv, nil
}

// QueuePrompt submits the workflow for execution and returns the server's
// handle for it. Failures are not retried.
func (c *ComfyClient) QueuePrompt(ctx context.Context, workflow graphapi.Workflow) (*QueuedPrompt, error) {
	const op = "queue prompt"
	data, err := json.Marshal(graphapi.NewPrompt(workflow, c.clientid))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/prompt", nil), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}

	item := &QueuedPrompt{}
	if err := json.Unmarshal(body, item); err != nil {
		slog.Error("error unmarshalling prompt response", "body", string(body))
		return nil, &ProtocolError{Op: op, Err: err}
	}
	if item.PromptID == "" {
		return nil, missingField(op, "prompt_id")
	}
	slog.Debug("queued prompt", "prompt_id", item.PromptID, "number", item.Number)
	return item, nil
}

// GetHistory fetches the history record of a prompt. It reports false while
// the prompt has not finished: the server only lists a prompt once it is
// done. Transient failures are retried according to the client's
// RetryPolicy.
func (c *ComfyClient) GetHistory(ctx context.Context, promptID string) (*HistoryItem, bool, error) {
	const op = "get history"
	var body []byte
	err := c.retry.Do(ctx, op, func() error {
		var err error
		body, err = c.get(ctx, op, "/history/"+url.PathEscape(promptID), nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	history := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, false, &ProtocolError{Op: op, Err: err}
	}
	raw, ok := history[promptID]
	if !ok {
		return nil, false, nil
	}

	item := &HistoryItem{}
	if err := json.Unmarshal(raw, item); err != nil {
		return nil, false, &ProtocolError{Op: op, Err: err}
	}
	item.PromptID = promptID
	return item, true, nil
}

// GetImage downloads the bytes of one output artifact.
func (c *ComfyClient) GetImage(ctx context.Context, image_data DataOutput) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", image_data.Filename)
	params.Add("subfolder", image_data.Subfolder)
	params.Add("type", image_data.Type)
	body, err := c.get(ctx, "get image", "/view", params)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", image_data.Filename, err)
	}
	return body, nil
}
