// Package orchestrator drives one generation run: it exports the selected
// objects, pads them onto a square canvas, uploads them, submits one patched
// copy of the workflow per batch index, waits for each result and places
// the cropped result back into the document.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/richinsley/comfycanvas/client"
	"github.com/richinsley/comfycanvas/config"
	"github.com/richinsley/comfycanvas/geometry"
	"github.com/richinsley/comfycanvas/graphapi"
)

var (
	ErrNoOutputs       = errors.New("prompt produced no images")
	ErrPollDeadline    = errors.New("prompt did not finish before the poll deadline")
	ErrExecutionFailed = errors.New("prompt execution failed")
	ErrNoInputObjects  = errors.New("no selected objects for input")
)

// Backend is the subset of the ComfyUI API a run needs. *client.ComfyClient
// satisfies it.
type Backend interface {
	UploadFileFromPath(ctx context.Context, filePath string, opts client.UploadOptions) (string, error)
	QueuePrompt(ctx context.Context, workflow graphapi.Workflow) (*client.QueuedPrompt, error)
	GetHistory(ctx context.Context, promptID string) (*client.HistoryItem, bool, error)
	GetImage(ctx context.Context, image client.DataOutput) ([]byte, error)
}

// Job is everything a run needs besides its collaborators.
type Job struct {
	Workflow     graphapi.Workflow
	WorkflowPath string
	Slots        graphapi.SlotTable
	// Inputs are the image slots to feed, main image first.
	Inputs     []graphapi.Slot
	Params     config.Params
	BatchCount int
	Grid       geometry.Grid
	ServerURL  string
}

// NewJob builds the job for the active variant of c.
func NewJob(c config.Config, workflow graphapi.Workflow) Job {
	active := c.Active()
	return Job{
		Workflow:     workflow,
		WorkflowPath: active.WorkflowPath,
		Slots:        active.Slots.Table(),
		Inputs:       c.Variant.ImageSlots(),
		Params:       c.Params,
		BatchCount:   c.BatchCount,
		Grid:         geometry.Grid{Columns: c.GridColumns, GapPercent: c.GridGapPercent},
		ServerURL:    c.ServerURL,
	}
}

type Options struct {
	PollInterval time.Duration
	// PollDeadline bounds the wait for each prompt; 0 waits forever.
	PollDeadline time.Duration
	// TempDir is the parent of the per-run scratch directory; "" uses the
	// system default.
	TempDir string
	Seeds   graphapi.SeedSource
	// OnState is called on every state transition.
	OnState func(State)
	// OnResult is called after each result has been inserted.
	OnResult func(Result)
}

// Result describes one inserted raster.
type Result struct {
	Index     int
	PromptID  string
	Seed      int64
	Rect      geometry.Rect
	Discarded int
}

type Orchestrator struct {
	backend Backend
	doc     Document
	opts    Options
	state   State
}

func New(backend Backend, doc Document, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Orchestrator{backend: backend, doc: doc, opts: opts}
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) setState(s State) {
	slog.Debug("state transition", "from", o.state, "to", s)
	o.state = s
	if o.opts.OnState != nil {
		o.opts.OnState(s)
	}
}

// preparedInputs are the uploaded rasters shared by every batch index.
type preparedInputs struct {
	images   map[graphapi.Slot]string
	canvas   geometry.CanvasGeometry
	hasImage bool
	bbox     geometry.Rect
}

// Run executes job BatchCount times, sequentially. The first error aborts
// the remaining batch; results inserted so far are returned with it.
// Scratch files are removed on every exit path.
func (o *Orchestrator) Run(ctx context.Context, job Job) (results []Result, err error) {
	o.state = StateIdle
	defer func() {
		if err != nil {
			o.setState(StateFailed)
		}
	}()

	dir, err := os.MkdirTemp(o.opts.TempDir, "comfycanvas-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	in, err := o.prepareInputs(ctx, dir, job)
	if err != nil {
		return nil, err
	}
	o.setState(StateInputPrepared)

	count := max(job.BatchCount, 1)
	results = make([]Result, 0, count)
	for i := 0; i < count; i++ {
		res, err := o.runOnce(ctx, job, in, i)
		if err != nil {
			return results, fmt.Errorf("batch %d of %d: %w", i+1, count, err)
		}
		results = append(results, res)
		if o.opts.OnResult != nil {
			o.opts.OnResult(res)
		}
	}
	o.setState(StateDone)
	return results, nil
}

// prepareInputs exports, pads and uploads every image input the job feeds
// and the workflow actually has. The first exported input fixes the canvas
// every other input is centered on.
func (o *Orchestrator) prepareInputs(ctx context.Context, dir string, job Job) (preparedInputs, error) {
	in := preparedInputs{images: make(map[graphapi.Slot]string)}

	var selection map[graphapi.Slot][]string
	var canvas *geometry.CanvasGeometry
	for _, slot := range job.Inputs {
		if _, _, ok := job.Slots.Resolve(job.Workflow, slot); !ok {
			continue
		}
		if selection == nil {
			selection = PartitionSelection(o.doc.SelectedIDs())
		}
		ids := selection[slot]
		if len(ids) == 0 {
			return in, fmt.Errorf("%w: %s", ErrNoInputObjects, slot)
		}

		exported := filepath.Join(dir, string(slot)+"_image.png")
		if err := o.doc.ExportToRaster(ctx, ids, exported); err != nil {
			return in, fmt.Errorf("exporting %s: %w", slot, err)
		}
		src, err := imaging.Open(exported)
		if err != nil {
			return in, fmt.Errorf("reading exported %s: %w", slot, err)
		}

		b := src.Bounds()
		var g geometry.CanvasGeometry
		if canvas == nil {
			g = geometry.NewCanvasGeometry(b.Dx(), b.Dy())
			canvas = &g
		} else {
			g = canvas.Embed(b.Dx(), b.Dy())
		}

		square := filepath.Join(dir, "square_"+string(slot)+"_image.png")
		if err := imaging.Save(geometry.Pad(src, g), square); err != nil {
			return in, fmt.Errorf("writing padded %s: %w", slot, err)
		}
		path, err := o.backend.UploadFileFromPath(ctx, square, client.UploadOptions{
			Overwrite: true,
			Type:      client.InputImageType,
		})
		if err != nil {
			return in, fmt.Errorf("uploading %s: %w", slot, err)
		}
		slog.Info("uploaded input", "slot", slot, "path", path, "width", b.Dx(), "height", b.Dy())
		in.images[slot] = path
	}

	if _, ok := in.images[graphapi.SlotImageInput]; ok {
		bbox, err := o.doc.SelectionBoundingBox()
		if err != nil {
			return in, fmt.Errorf("reading selection bounds: %w", err)
		}
		in.hasImage = true
		in.canvas = *canvas
		in.bbox = bbox
	}
	return in, nil
}

func (o *Orchestrator) runOnce(ctx context.Context, job Job, in preparedInputs, index int) (Result, error) {
	res := Result{Index: index}

	wf := job.Workflow.Clone()
	res.Seed = graphapi.ResolveSeed(job.Params.Seed, o.opts.Seeds)
	positive, negative := job.Params.PositivePrompt, job.Params.NegativePrompt
	wf.Apply(job.Slots, graphapi.Patch{
		Positive: &positive,
		Negative: &negative,
		Sampler: &graphapi.SamplerParams{
			CFG:     job.Params.CFG,
			Denoise: job.Params.Denoise,
			Steps:   job.Params.Steps,
			Seed:    res.Seed,
		},
		Images: in.images,
	})

	queued, err := o.backend.QueuePrompt(ctx, wf)
	if err != nil {
		return res, err
	}
	res.PromptID = queued.PromptID
	o.setState(StateSubmitted)
	slog.Info("queued prompt", "prompt_id", res.PromptID, "batch", index, "seed", res.Seed)

	o.setState(StatePolling)
	item, err := o.poll(ctx, res.PromptID)
	if err != nil {
		return res, err
	}

	images := item.Images()
	if len(images) == 0 {
		if item.Status != nil && item.Status.StatusStr == "error" {
			return res, fmt.Errorf("%w: %s", ErrExecutionFailed, res.PromptID)
		}
		return res, fmt.Errorf("%w: %s", ErrNoOutputs, res.PromptID)
	}
	if len(images) > 1 {
		res.Discarded = len(images) - 1
		slog.Warn("using the first output image only", "prompt_id", res.PromptID, "discarded", res.Discarded)
	}

	data, err := o.backend.GetImage(ctx, images[0])
	if err != nil {
		return res, err
	}
	o.setState(StateFetched)

	result, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("decoding %s: %w", images[0].Filename, err)
	}

	g, base := in.canvas, in.bbox
	if !in.hasImage {
		b := result.Bounds()
		g = geometry.ResultGeometry(b.Dx(), b.Dy())
		base = geometry.Rect{Width: float64(b.Dx()), Height: float64(b.Dy())}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, geometry.Crop(result, g), imaging.PNG); err != nil {
		return res, fmt.Errorf("encoding result: %w", err)
	}
	res.Rect = job.Grid.Place(base, index)
	o.setState(StatePlaced)

	meta := Provenance{
		PositivePrompt: job.Params.PositivePrompt,
		NegativePrompt: job.Params.NegativePrompt,
		CFG:            job.Params.CFG,
		Denoise:        job.Params.Denoise,
		Seed:           res.Seed,
		Steps:          job.Params.Steps,
		WorkflowPath:   job.WorkflowPath,
		ServerURL:      job.ServerURL,
		PromptID:       res.PromptID,
		BatchIndex:     index,
	}
	if err := o.doc.InsertRaster(ctx, buf.Bytes(), res.Rect, meta); err != nil {
		return res, fmt.Errorf("inserting result: %w", err)
	}
	return res, nil
}

// poll asks for the history of promptID every PollInterval until it is
// present. Transient failures are retried inside the backend.
func (o *Orchestrator) poll(ctx context.Context, promptID string) (*client.HistoryItem, error) {
	var deadline time.Time
	if o.opts.PollDeadline > 0 {
		deadline = time.Now().Add(o.opts.PollDeadline)
	}

	for attempt := 1; ; attempt++ {
		item, ok, err := o.backend.GetHistory(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if ok {
			slog.Debug("prompt finished", "prompt_id", promptID, "polls", attempt)
			return item, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrPollDeadline, promptID, o.opts.PollDeadline)
		}

		timer := time.NewTimer(o.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
