package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinsley/comfycanvas/graphapi"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func defaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	c := Load(defaults())

	require.Equal(t, "127.0.0.1:8188", c.ServerURL)
	require.Equal(t, VariantBasic, c.Variant)
	require.Equal(t, 7.0, c.Params.CFG)
	require.Equal(t, 0.75, c.Params.Denoise)
	require.Equal(t, int64(0), c.Params.Seed)
	require.Equal(t, 20, c.Params.Steps)
	require.Equal(t, 1, c.BatchCount)
	require.Equal(t, 4, c.GridColumns)
	require.Equal(t, time.Second, c.PollInterval)
	require.Equal(t, time.Duration(0), c.PollDeadline)

	require.Equal(t, SlotIDs{Positive: 30, Negative: 33, Sampler: 3}, c.Variants[VariantBasic].Slots)
	require.Equal(t, SlotIDs{Positive: 16, Negative: 19, Sampler: 36, ImageInput: 38}, c.Variants[VariantMasked].Slots)
	require.Equal(t, SlotIDs{}, c.Variants[VariantCustom3].Slots)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comfycanvas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server-url: http://gpu-box:8188/
workflow-select: masked
positive-prompt: a lighthouse at dusk
negative-prompt: blurry
masked-workflow: /workflows/inpaint.json
masked-mask-input-id: 41
seed: 42
batch-count: 3
poll-deadline: 2m
`), 0o644))

	v := defaults()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	c := Load(v)

	require.Equal(t, VariantMasked, c.Variant)
	require.Equal(t, "/workflows/inpaint.json", c.Active().WorkflowPath)
	require.Equal(t, 41, c.Active().Slots.MaskInput)
	require.Equal(t, 38, c.Active().Slots.ImageInput)
	require.Equal(t, int64(42), c.Params.Seed)
	require.Equal(t, 3, c.BatchCount)
	require.Equal(t, 2*time.Minute, c.PollDeadline)
	require.NoError(t, c.Validate(true))

	table := c.Active().Slots.Table()
	require.Equal(t, 41, table[graphapi.SlotMaskInput])
	require.Equal(t, 0, table[graphapi.SlotPoseInput])
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Load(defaults())
		c.Params.PositivePrompt = "a cat"
		c.Params.NegativePrompt = "a dog"
		vc := c.Variants[VariantImg2Img]
		vc.WorkflowPath = "img2img.json"
		c.Variants[VariantImg2Img] = vc
		c.Variant = VariantImg2Img
		return c
	}

	require.NoError(t, valid().Validate(true))

	for name, tc := range map[string]struct {
		mutate       func(*Config)
		hasSelection bool
		want         error
	}{
		"missing positive": {func(c *Config) { c.Params.PositivePrompt = " " }, true, ErrMissingParameter},
		"missing negative": {func(c *Config) { c.Params.NegativePrompt = "" }, true, ErrMissingParameter},
		"missing workflow": {func(c *Config) { c.Variant = VariantPose }, true, ErrMissingParameter},
		"missing server":   {func(c *Config) { c.ServerURL = "" }, true, ErrMissingParameter},
		"no selection":     {func(c *Config) {}, false, ErrNoSelection},
		"unknown variant":  {func(c *Config) { c.Variant = "sketch" }, true, ErrInvalidParameter},
		"zero batch":       {func(c *Config) { c.BatchCount = 0 }, true, ErrInvalidParameter},
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			require.ErrorIs(t, c.Validate(tc.hasSelection), tc.want)
		})
	}

	t.Run("basic needs no selection", func(t *testing.T) {
		c := valid()
		c.Variant = VariantBasic
		vc := c.Variants[VariantBasic]
		vc.WorkflowPath = "basic.json"
		c.Variants[VariantBasic] = vc
		require.NoError(t, c.Validate(false))
	})
}

func TestVariantImageSlots(t *testing.T) {
	require.Empty(t, VariantBasic.ImageSlots())
	require.Equal(t, []graphapi.Slot{graphapi.SlotImageInput}, VariantImg2Img.ImageSlots())
	require.Equal(t, []graphapi.Slot{graphapi.SlotImageInput, graphapi.SlotPoseInput}, VariantPose.ImageSlots())
	require.Equal(t, graphapi.ImageSlots, VariantCustom1.ImageSlots())
	require.False(t, VariantBasic.RequiresSelection())
	require.True(t, VariantCustom2.RequiresSelection())
}
