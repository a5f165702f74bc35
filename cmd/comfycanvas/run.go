package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/richinsley/comfycanvas/client"
	"github.com/richinsley/comfycanvas/config"
	"github.com/richinsley/comfycanvas/document"
	"github.com/richinsley/comfycanvas/graphapi"
	"github.com/richinsley/comfycanvas/orchestrator"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runCLI struct {
	v      *viper.Viper
	cfg    config.Config
	canvas *document.Canvas
	output string
}

func newRunCommand() *cobra.Command {
	c := &runCLI{v: viper.New()}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow on the selected layers and write the result as SVG",
		Example: `  comfycanvas run --workflow-select img2img --img2img-workflow img2img.json \
    --positive-prompt "a lighthouse at dusk" --negative-prompt "blurry" \
    --layer sketch.png --layer sky=sky.png@0,200 -o out.svg`,
		PreRunE: c.setupConfig,
		RunE:    c.run,
	}
	if err := setupRunFlags(cmd, c.v); err != nil {
		panic(err)
	}
	return cmd
}

func setupRunFlags(cmd *cobra.Command, v *viper.Viper) error {
	defaults := viper.New()
	config.SetDefaults(defaults)
	def := config.Load(defaults)
	config.SetDefaults(v)

	f := cmd.Flags()
	f.String("config-file", "", "Path to config file.")
	f.String("server-url", def.ServerURL, "ComfyUI server address")
	f.String("workflow-select", string(def.Variant), "workflow variant: basic, img2img, masked, pose or custom1 to custom4")
	f.String("positive-prompt", "", "positive prompt text")
	f.String("negative-prompt", "", "negative prompt text")
	f.Float64("cfg-scale", def.Params.CFG, "sampler CFG scale")
	f.Float64("denoise", def.Params.Denoise, "sampler denoise strength")
	f.Int64("seed", def.Params.Seed, "sampler seed; 0 or less draws a new random seed for every image")
	f.Int("steps", def.Params.Steps, "sampler steps")
	f.Int("batch-count", def.BatchCount, "number of images to generate")
	f.Int("grid-columns", def.GridColumns, "columns of the grid batch results are tiled in")
	f.Float64("grid-gap", def.GridGapPercent, "gap between tiled results, in percent of the result size")
	f.Duration("poll-interval", def.PollInterval, "time between history polls")
	f.Duration("poll-deadline", def.PollDeadline, "give up on a prompt after this long; 0 waits forever")
	f.Bool("watch", def.WatchProgress, "show per node progress from the server websocket")

	for _, variant := range config.AllVariants {
		vc := def.Variants[variant]
		f.String(config.VariantKey(variant, "workflow"), "", fmt.Sprintf("workflow JSON or PNG for the %s variant", variant))
		ids := []int{
			vc.Slots.Positive, vc.Slots.Negative, vc.Slots.Sampler,
			vc.Slots.ImageInput, vc.Slots.MaskInput, vc.Slots.PoseInput,
		}
		for i, key := range config.SlotKeys {
			role := strings.TrimSuffix(key, "-id")
			f.Int(config.VariantKey(variant, key), ids[i], fmt.Sprintf("%s node id of the %s workflow (0 if absent)", role, variant))
		}
	}

	v.SetEnvPrefix("COMFYCANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		return err
	}

	// document flags are not part of the configuration surface
	f.StringArray("layer", nil, "PNG layer as [id=]path[@x,y]; repeatable")
	f.StringSlice("select", nil, "ids of the selected layers; all layers when omitted")
	f.StringP("output", "o", "comfycanvas.svg", "SVG file to write")
	return nil
}

func (c *runCLI) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		c.v.SetConfigFile(configFile)
		if err := c.v.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	c.cfg = config.Load(c.v)

	specs, err := cmd.Flags().GetStringArray("layer")
	if err != nil {
		return err
	}
	layers := make([]document.Layer, 0, len(specs))
	for _, s := range specs {
		l, err := document.ParseLayer(s)
		if err != nil {
			return err
		}
		layers = append(layers, l)
	}
	if c.canvas, err = document.NewCanvas(layers); err != nil {
		return err
	}

	selection, err := cmd.Flags().GetStringSlice("select")
	if err != nil {
		return err
	}
	if len(selection) == 0 {
		c.canvas.SelectAll()
	} else if err := c.canvas.Select(selection...); err != nil {
		return err
	}

	c.output, err = cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	return c.cfg.Validate(len(c.canvas.SelectedIDs()) > 0)
}

func (c *runCLI) run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workflowPath := c.cfg.Active().WorkflowPath
	workflow, err := graphapi.NewWorkflowFromFile(workflowPath)
	if err != nil {
		return err
	}
	slog.Debug("loaded workflow", "path", workflowPath, "nodes", len(workflow))

	comfy, err := client.NewComfyClient(c.cfg.ServerURL)
	if err != nil {
		return err
	}
	slog.Info("using server", "url", comfy.BaseURL(), "client_id", comfy.ClientID(), "variant", c.cfg.Variant)

	opts := orchestrator.Options{
		PollInterval: c.cfg.PollInterval,
		PollDeadline: c.cfg.PollDeadline,
	}
	if c.cfg.WatchProgress {
		monitor, err := comfy.WatchProgress(ctx, nodeProgressHandlers())
		if err != nil {
			slog.Warn("progress monitor unavailable", "error", err)
		} else {
			defer monitor.Close()
		}
	} else {
		bar := progressbar.Default(int64(c.cfg.BatchCount), "generating")
		opts.OnResult = func(orchestrator.Result) { bar.Add(1) }
	}

	job := orchestrator.NewJob(c.cfg, workflow)
	results, runErr := orchestrator.New(comfy, c.canvas, opts).Run(ctx, job)
	for _, r := range results {
		slog.Info("placed result", "batch", r.Index, "prompt_id", r.PromptID, "seed", r.Seed,
			"left", r.Rect.Left, "top", r.Rect.Top, "width", r.Rect.Width, "height", r.Rect.Height)
	}

	if len(c.canvas.Generated()) > 0 {
		if err := c.canvas.SaveSVG(c.output); err != nil {
			return errors.Join(runErr, fmt.Errorf("writing %s: %w", c.output, err))
		}
		slog.Info("wrote document", "path", c.output, "generated", len(c.canvas.Generated()))
	}
	return runErr
}
