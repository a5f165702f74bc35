// Comfycanvas drives a ComfyUI server from a layered canvas: the selected
// layers are padded onto a square canvas and uploaded, an API format
// workflow is patched through a small table of node ids and queued once per
// batch image, and every result is cropped back to the selection and tiled
// into an SVG document together with the prompt, seed and sampler settings
// that produced it.
//
// The packages are layered leaves first: geometry (canvas padding, cropping
// and grid placement), graphapi (workflow model and patching), client (the
// ComfyUI HTTP and websocket API), config, orchestrator (the run state
// machine) and document (the file based canvas). cmd/comfycanvas wires them
// into a command line tool.
package comfycanvas
