package graphapi

import (
	"log/slog"
	"math/rand"
	"strconv"
)

// Slot is a logical role within a workflow, resolved to a concrete node ID
// through a SlotTable.
type Slot string

const (
	SlotPositive   Slot = "positive"
	SlotNegative   Slot = "negative"
	SlotSampler    Slot = "sampler"
	SlotImageInput Slot = "image_input"
	SlotMaskInput  Slot = "mask_input"
	SlotPoseInput  Slot = "pose_input"
)

// ImageSlots are the slots that take an uploaded server side image path.
var ImageSlots = []Slot{SlotImageInput, SlotMaskInput, SlotPoseInput}

// TextFields are the synonymous prompt fields used by the different text
// encoder node kinds.
var TextFields = []string{"text", "text_l", "text_g"}

// SlotTable maps each slot to a numeric node ID. An ID of 0 (or an unset
// slot) means the workflow has no such slot.
type SlotTable map[Slot]int

// Resolve returns the node configured for slot s. It reports false when the
// ID is non-positive or the node does not exist in w.
func (t SlotTable) Resolve(w Workflow, s Slot) (string, *Node, bool) {
	id := t[s]
	if id <= 0 {
		return "", nil, false
	}
	key := strconv.Itoa(id)
	n := w.GetNodeById(key)
	if n == nil {
		return key, nil, false
	}
	return key, n, true
}

// SamplerParams are the numeric generation parameters of a sampler node.
type SamplerParams struct {
	CFG     float64
	Denoise float64
	Steps   int
	Seed    int64
}

// Patch is the set of values applied to a workflow for one job.
// Nil fields are left alone.
type Patch struct {
	Positive *string
	Negative *string
	Sampler  *SamplerParams
	// Images maps image slots to server side paths returned by an upload.
	Images map[Slot]string
}

// Apply writes p into w through the slots of t and returns the slots that
// were actually applied. Slots whose node cannot be resolved are skipped
// silently.
func (w Workflow) Apply(t SlotTable, p Patch) []Slot {
	applied := make([]Slot, 0, 6)

	setText := func(s Slot, text *string) {
		if text == nil {
			return
		}
		id, n, ok := t.Resolve(w, s)
		if !ok {
			slog.Debug("skipping unresolved slot", "slot", s, "node_id", id)
			return
		}
		for _, f := range TextFields {
			n.SetInput(f, StringValue(*text))
		}
		applied = append(applied, s)
	}
	setText(SlotPositive, p.Positive)
	setText(SlotNegative, p.Negative)

	if p.Sampler != nil {
		if id, n, ok := t.Resolve(w, SlotSampler); ok {
			n.SetInput("cfg", FloatValue(p.Sampler.CFG))
			n.SetInput("denoise", FloatValue(p.Sampler.Denoise))
			n.SetInput("steps", IntValue(int64(p.Sampler.Steps)))
			n.SetInput("seed", IntValue(p.Sampler.Seed))
			applied = append(applied, SlotSampler)
		} else {
			slog.Debug("skipping unresolved slot", "slot", SlotSampler, "node_id", id)
		}
	}

	for _, s := range ImageSlots {
		path, ok := p.Images[s]
		if !ok {
			continue
		}
		id, n, ok := t.Resolve(w, s)
		if !ok {
			slog.Debug("skipping unresolved slot", "slot", s, "node_id", id)
			continue
		}
		n.SetInput("image", StringValue(path))
		applied = append(applied, s)
	}
	return applied
}

// MaxRandomSeed bounds randomly drawn seeds: [0, MaxRandomSeed).
const MaxRandomSeed = 1_000_000_000

// SeedSource draws random seeds. *rand.Rand satisfies it.
type SeedSource interface {
	Int63n(n int64) int64
}

type globalSource struct{}

func (globalSource) Int63n(n int64) int64 { return rand.Int63n(n) }

// ResolveSeed returns seed when it is positive, otherwise a fresh uniformly
// random seed from src (or the global source when src is nil).
func ResolveSeed(seed int64, src SeedSource) int64 {
	if seed > 0 {
		return seed
	}
	if src == nil {
		src = globalSource{}
	}
	return src.Int63n(MaxRandomSeed)
}
