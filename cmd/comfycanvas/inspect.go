package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/richinsley/comfycanvas/graphapi"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <workflow.json|image.png>",
		Short: "List the nodes of an API format workflow, or of one embedded in a ComfyUI PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := graphapi.NewWorkflowFromFile(args[0])
			if err != nil {
				return err
			}
			displayWorkflow(cmd.OutOrStdout(), wf)
			return nil
		},
	}
}

var inspectedInputs = []string{"text", "text_l", "text_g", "image", "seed"}

// displayWorkflow prints one line per node, sorted by id, with the prompt
// and image inputs the slot configuration can target.
func displayWorkflow(w io.Writer, wf graphapi.Workflow) {
	for _, id := range wf.NodeIDs() {
		n := wf.GetNodeById(id)
		line := fmt.Sprintf("%6s  %-28s", id, n.ClassType)
		if title := n.Title(); title != "" {
			line += fmt.Sprintf("  %q", title)
		}

		var targets []string
		for _, f := range inspectedInputs {
			if _, ok := n.GetInput(f); ok {
				targets = append(targets, f)
			}
		}
		if len(targets) > 0 {
			line += "  [" + strings.Join(targets, " ") + "]"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
