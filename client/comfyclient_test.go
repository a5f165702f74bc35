package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richinsley/comfycanvas/graphapi"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*ComfyClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewComfyClient(srv.URL + "/")
	require.NoError(t, err)
	c.SetRetryPolicy(RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond})
	return c, srv
}

func TestNormalizeServerURL(t *testing.T) {
	for input, want := range map[string]string{
		"127.0.0.1:8188":               "http://127.0.0.1:8188",
		"  http://127.0.0.1:8188/  ":   "http://127.0.0.1:8188",
		"https://comfy.example.com/":   "https://comfy.example.com",
		"http://proxy:80/comfy/":       "http://proxy:80/comfy",
		"http://host:8188/?debug=true": "http://host:8188",
	} {
		u, err := NormalizeServerURL(input)
		require.NoError(t, err, input)
		require.Equal(t, want, u.String(), input)
	}

	for _, bad := range []string{"", "   ", "ftp://host", "http://"} {
		_, err := NormalizeServerURL(bad)
		require.Error(t, err, bad)
	}
}

func TestClientIDIsStable(t *testing.T) {
	a, err := NewComfyClient("localhost:8188")
	require.NoError(t, err)
	b, err := NewComfyClient("localhost:8188")
	require.NoError(t, err)

	require.NotEmpty(t, a.ClientID())
	require.Equal(t, a.ClientID(), a.ClientID())
	require.NotEqual(t, a.ClientID(), b.ClientID())
	require.Equal(t, "ws://localhost:8188/ws?clientId="+a.ClientID(), a.websocketURL())
}

func TestQueuePrompt(t *testing.T) {
	wf, err := graphapi.NewWorkflowFromJsonString(`{"3": {"inputs": {"seed": 5}, "class_type": "KSampler"}}`)
	require.NoError(t, err)

	t.Run("returns the prompt id", func(t *testing.T) {
		var received map[string]json.RawMessage
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/prompt", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			io.WriteString(w, `{"prompt_id": "1234", "number": 7, "node_errors": {}}`)
		}))

		item, err := c.QueuePrompt(context.Background(), wf)
		require.NoError(t, err)
		require.Equal(t, "1234", item.PromptID)
		require.Equal(t, 7, item.Number)

		require.JSONEq(t, `{"3": {"inputs": {"seed": 5}, "class_type": "KSampler"}}`, string(received["prompt"]))
		require.JSONEq(t, `"`+c.ClientID()+`"`, string(received["client_id"]))
	})

	t.Run("missing prompt id", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"number": 1}`)
		}))
		_, err := c.QueuePrompt(context.Background(), wf)
		var perr *ProtocolError
		require.ErrorAs(t, err, &perr)
		require.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("malformed json", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html>`)
		}))
		_, err := c.QueuePrompt(context.Background(), wf)
		var perr *ProtocolError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("rejected prompt carries server message", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": {"type": "prompt_no_outputs", "message": "Prompt has no outputs", "details": "", "extra_info": {}}, "node_errors": []}`)
		}))
		_, err := c.QueuePrompt(context.Background(), wf)
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		require.Equal(t, http.StatusBadRequest, serr.StatusCode)
		require.Equal(t, "Prompt has no outputs", serr.Message)
		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestGetHistory(t *testing.T) {
	t.Run("pending prompt is absent", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/history/abc", r.URL.Path)
			io.WriteString(w, `{}`)
		}))
		item, ok, err := c.GetHistory(context.Background(), "abc")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, item)
	})

	t.Run("outputs keep server order", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"abc": {"prompt": [], "outputs": {
				"9": {"images": [{"filename": "a.png", "subfolder": "", "type": "output"}, {"filename": "b.png", "subfolder": "x", "type": "output"}]},
				"12": {"text": ["hello"]},
				"3": {"images": [{"filename": "c.png", "subfolder": "", "type": "temp"}]}
			}, "status": {"status_str": "success", "completed": true}}}`)
		}))
		item, ok, err := c.GetHistory(context.Background(), "abc")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", item.PromptID)
		require.True(t, item.Status.Completed)

		require.Len(t, item.Outputs, 3)
		require.Equal(t, "9", item.Outputs[0].NodeID)
		require.Equal(t, "12", item.Outputs[1].NodeID)
		require.Equal(t, "3", item.Outputs[2].NodeID)

		images := item.Images()
		require.Equal(t, []string{"a.png", "b.png", "c.png"}, []string{images[0].Filename, images[1].Filename, images[2].Filename})
		require.Equal(t, "x", images[1].Subfolder)
		require.Equal(t, "temp", images[2].Type)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			io.WriteString(w, `{"abc": {"outputs": {}}}`)
		}))
		_, ok, err := c.GetHistory(context.Background(), "abc")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("exhaustion is a timeout", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		_, _, err := c.GetHistory(context.Background(), "abc")
		var terr *TimeoutError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, 5, terr.Attempts)
		require.Equal(t, int32(5), atomic.LoadInt32(&calls))
	})

	t.Run("network failure is a timeout", func(t *testing.T) {
		c, srv := newTestClient(t, http.NotFoundHandler())
		srv.Close()
		_, _, err := c.GetHistory(context.Background(), "abc")
		var terr *TimeoutError
		require.ErrorAs(t, err, &terr)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		_, _, err := c.GetHistory(context.Background(), "abc")
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("malformed history", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `[1, 2]`)
		}))
		_, _, err := c.GetHistory(context.Background(), "abc")
		var perr *ProtocolError
		require.ErrorAs(t, err, &perr)
	})
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxAttempts: 5, InitialInterval: time.Hour}
	err := p.Do(ctx, "test", func() error {
		return &StatusError{Op: "test", StatusCode: 503, Status: "503 Service Unavailable"}
	})
	require.Error(t, err)
	var terr *TimeoutError
	require.False(t, errors.As(err, &terr))
}

func TestGetImage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/view", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "ComfyUI_00001_.png", q.Get("filename"))
		require.Equal(t, "sub", q.Get("subfolder"))
		require.Equal(t, "output", q.Get("type"))
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))

	data, err := c.GetImage(context.Background(), DataOutput{Filename: "ComfyUI_00001_.png", Subfolder: "sub", Type: "output"})
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestGetSystemStats(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"system": {"os": "posix", "python_version": "3.11"}, "devices": [{"name": "cuda:0", "type": "cuda", "vram_total": 100}]}`)
	}))
	stats, err := c.GetSystemStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "posix", stats.System.OS)
	require.Len(t, stats.Devices, 1)
	require.True(t, strings.HasPrefix(stats.Devices[0].Name, "cuda"))
}
