package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinsley/comfycanvas/graphapi"
	"github.com/spf13/viper"
)

var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrNoSelection      = errors.New("no objects selected")
	ErrInvalidParameter = errors.New("invalid parameter")
)

type Variant string

const (
	VariantBasic   Variant = "basic"
	VariantImg2Img Variant = "img2img"
	VariantMasked  Variant = "masked"
	VariantPose    Variant = "pose"
	VariantCustom1 Variant = "custom1"
	VariantCustom2 Variant = "custom2"
	VariantCustom3 Variant = "custom3"
	VariantCustom4 Variant = "custom4"
)

var AllVariants = []Variant{
	VariantBasic, VariantImg2Img, VariantMasked, VariantPose,
	VariantCustom1, VariantCustom2, VariantCustom3, VariantCustom4,
}

func (v Variant) Valid() bool {
	for _, known := range AllVariants {
		if v == known {
			return true
		}
	}
	return false
}

// ImageSlots lists the image inputs a variant feeds. Custom variants feed
// every input whose slot is configured.
func (v Variant) ImageSlots() []graphapi.Slot {
	switch v {
	case VariantBasic:
		return nil
	case VariantImg2Img:
		return []graphapi.Slot{graphapi.SlotImageInput}
	case VariantMasked:
		return []graphapi.Slot{graphapi.SlotImageInput, graphapi.SlotMaskInput}
	case VariantPose:
		return []graphapi.Slot{graphapi.SlotImageInput, graphapi.SlotPoseInput}
	}
	return graphapi.ImageSlots
}

// RequiresSelection is false only for text-to-image workflows.
func (v Variant) RequiresSelection() bool {
	return v != VariantBasic
}

// SlotIDs are the node IDs of a workflow's logical slots. 0 means the
// workflow has no such slot.
type SlotIDs struct {
	Positive   int
	Negative   int
	Sampler    int
	ImageInput int
	MaskInput  int
	PoseInput  int
}

func (s SlotIDs) Table() graphapi.SlotTable {
	return graphapi.SlotTable{
		graphapi.SlotPositive:   s.Positive,
		graphapi.SlotNegative:   s.Negative,
		graphapi.SlotSampler:    s.Sampler,
		graphapi.SlotImageInput: s.ImageInput,
		graphapi.SlotMaskInput:  s.MaskInput,
		graphapi.SlotPoseInput:  s.PoseInput,
	}
}

type VariantConfig struct {
	WorkflowPath string
	Slots        SlotIDs
}

type Params struct {
	PositivePrompt string
	NegativePrompt string
	CFG            float64
	Denoise        float64
	Seed           int64
	Steps          int
}

type Config struct {
	ServerURL      string
	Variant        Variant
	Variants       map[Variant]VariantConfig
	Params         Params
	BatchCount     int
	GridColumns    int
	GridGapPercent float64
	PollInterval   time.Duration
	// PollDeadline bounds the wait for a single job; 0 waits forever.
	PollDeadline  time.Duration
	WatchProgress bool
}

// Active returns the configuration of the selected variant.
func (c Config) Active() VariantConfig {
	return c.Variants[c.Variant]
}

// Validate checks the parameters that must be present before any network
// activity takes place.
func (c Config) Validate(hasSelection bool) error {
	if !c.Variant.Valid() {
		return fmt.Errorf("%w: unknown workflow variant %q", ErrInvalidParameter, c.Variant)
	}
	required := []struct {
		name  string
		value string
	}{
		{"positive prompt", c.Params.PositivePrompt},
		{"negative prompt", c.Params.NegativePrompt},
		{"workflow path", c.Active().WorkflowPath},
		{"server url", c.ServerURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: please provide %s", ErrMissingParameter, r.name)
		}
	}
	if c.BatchCount < 1 {
		return fmt.Errorf("%w: batch count must be at least 1", ErrInvalidParameter)
	}
	if c.GridColumns < 1 {
		return fmt.Errorf("%w: grid columns must be at least 1", ErrInvalidParameter)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidParameter)
	}
	if c.Variant.RequiresSelection() && !hasSelection {
		return fmt.Errorf("%w: please select at least one object", ErrNoSelection)
	}
	return nil
}

var defaultSlots = map[Variant]SlotIDs{
	VariantBasic:   {Positive: 30, Negative: 33, Sampler: 3},
	VariantImg2Img: {Positive: 16, Negative: 19, Sampler: 36, ImageInput: 38},
	VariantMasked:  {Positive: 16, Negative: 19, Sampler: 36, ImageInput: 38},
	VariantPose:    {Positive: 16, Negative: 19, Sampler: 36, ImageInput: 38},
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server-url", "127.0.0.1:8188")
	v.SetDefault("workflow-select", string(VariantBasic))
	v.SetDefault("cfg-scale", 7.0)
	v.SetDefault("denoise", 0.75)
	v.SetDefault("seed", 0)
	v.SetDefault("steps", 20)
	v.SetDefault("batch-count", 1)
	v.SetDefault("grid-columns", 4)
	v.SetDefault("grid-gap", 10.0)
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("poll-deadline", time.Duration(0))
	v.SetDefault("watch", false)

	for _, variant := range AllVariants {
		s := defaultSlots[variant]
		v.SetDefault(VariantKey(variant, "positive-id"), s.Positive)
		v.SetDefault(VariantKey(variant, "negative-id"), s.Negative)
		v.SetDefault(VariantKey(variant, "ksampler-id"), s.Sampler)
		v.SetDefault(VariantKey(variant, "image-input-id"), s.ImageInput)
		v.SetDefault(VariantKey(variant, "mask-input-id"), s.MaskInput)
		v.SetDefault(VariantKey(variant, "pose-input-id"), s.PoseInput)
		v.SetDefault(VariantKey(variant, "workflow"), "")
	}
}

// SlotKeys are the per variant node id settings, in SlotIDs field order.
var SlotKeys = []string{
	"positive-id", "negative-id", "ksampler-id",
	"image-input-id", "mask-input-id", "pose-input-id",
}

// VariantKey is the configuration key of a per variant setting, such as
// "masked-mask-input-id".
func VariantKey(v Variant, name string) string {
	return string(v) + "-" + name
}

// Load reads a Config from v. Defaults must already be registered.
func Load(v *viper.Viper) Config {
	c := Config{
		ServerURL: strings.TrimSpace(v.GetString("server-url")),
		Variant:   Variant(strings.TrimSpace(v.GetString("workflow-select"))),
		Variants:  make(map[Variant]VariantConfig, len(AllVariants)),
		Params: Params{
			PositivePrompt: v.GetString("positive-prompt"),
			NegativePrompt: v.GetString("negative-prompt"),
			CFG:            v.GetFloat64("cfg-scale"),
			Denoise:        v.GetFloat64("denoise"),
			Seed:           v.GetInt64("seed"),
			Steps:          v.GetInt("steps"),
		},
		BatchCount:     v.GetInt("batch-count"),
		GridColumns:    v.GetInt("grid-columns"),
		GridGapPercent: v.GetFloat64("grid-gap"),
		PollInterval:   v.GetDuration("poll-interval"),
		PollDeadline:   v.GetDuration("poll-deadline"),
		WatchProgress:  v.GetBool("watch"),
	}
	if c.Variant == "" {
		c.Variant = VariantBasic
	}

	for _, variant := range AllVariants {
		c.Variants[variant] = VariantConfig{
			WorkflowPath: strings.TrimSpace(v.GetString(VariantKey(variant, "workflow"))),
			Slots: SlotIDs{
				Positive:   v.GetInt(VariantKey(variant, "positive-id")),
				Negative:   v.GetInt(VariantKey(variant, "negative-id")),
				Sampler:    v.GetInt(VariantKey(variant, "ksampler-id")),
				ImageInput: v.GetInt(VariantKey(variant, "image-input-id")),
				MaskInput:  v.GetInt(VariantKey(variant, "mask-input-id")),
				PoseInput:  v.GetInt(VariantKey(variant, "pose-input-id")),
			},
		}
	}
	return c
}
