package orchestrator

import (
	"context"
	"strings"

	"github.com/richinsley/comfycanvas/geometry"
	"github.com/richinsley/comfycanvas/graphapi"
)

// Document is the host document the orchestrator reads selections from and
// inserts generated rasters into.
type Document interface {
	// SelectedIDs returns the ids of the currently selected objects.
	SelectedIDs() []string
	// ExportToRaster renders the objects with the given ids to a PNG file
	// at dest, with a transparent background.
	ExportToRaster(ctx context.Context, ids []string, dest string) error
	// SelectionBoundingBox is the bounding box of the whole selection in
	// document units.
	SelectionBoundingBox() (geometry.Rect, error)
	// InsertRaster embeds PNG data at rect, annotated with meta.
	InsertRaster(ctx context.Context, png []byte, rect geometry.Rect, meta Provenance) error
}

// Provenance records how a generated raster was produced.
type Provenance struct {
	PositivePrompt string  `json:"positive_prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	CFG            float64 `json:"cfg_scale"`
	Denoise        float64 `json:"denoise"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	WorkflowPath   string  `json:"workflow_json_path"`
	ServerURL      string  `json:"api_url"`
	PromptID       string  `json:"prompt_id"`
	BatchIndex     int     `json:"batch_index"`
}

func (p Provenance) Label() string {
	return "Generated Image: " + p.PositivePrompt
}

const (
	MaskMarker = "__mask"
	PoseMarker = "__pose"
)

// PartitionSelection sorts object ids by the image input they feed. Ids
// containing MaskMarker feed the mask input, ids containing PoseMarker feed
// the pose input, and everything else feeds the main image input.
func PartitionSelection(ids []string) map[graphapi.Slot][]string {
	out := make(map[graphapi.Slot][]string, 3)
	for _, id := range ids {
		switch {
		case strings.Contains(id, MaskMarker):
			out[graphapi.SlotMaskInput] = append(out[graphapi.SlotMaskInput], id)
		case strings.Contains(id, PoseMarker):
			out[graphapi.SlotPoseInput] = append(out[graphapi.SlotPoseInput], id)
		default:
			out[graphapi.SlotImageInput] = append(out[graphapi.SlotImageInput], id)
		}
	}
	return out
}
