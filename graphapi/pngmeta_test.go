package graphapi

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// pngWithText encodes a tiny PNG and inserts a tEXt chunk right after IHDR.
func pngWithText(t *testing.T, keyword, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2))))
	data := buf.Bytes()

	// signature (8) + IHDR length/type/data/crc (4+4+13+4)
	const ihdrEnd = 8 + 25
	payload := append([]byte(keyword), 0)
	payload = append(payload, text...)

	var chunk bytes.Buffer
	require.NoError(t, binary.Write(&chunk, binary.BigEndian, uint32(len(payload))))
	chunk.WriteString("tEXt")
	chunk.Write(payload)
	crc := crc32.ChecksumIEEE(append([]byte("tEXt"), payload...))
	require.NoError(t, binary.Write(&chunk, binary.BigEndian, crc))

	out := append([]byte{}, data[:ihdrEnd]...)
	out = append(out, chunk.Bytes()...)
	return append(out, data[ihdrEnd:]...)
}

func TestGetPngMetadata(t *testing.T) {
	meta, err := GetPngMetadata(bytes.NewReader(pngWithText(t, "prompt", img2imgWorkflow)))
	require.NoError(t, err)
	require.Equal(t, img2imgWorkflow, meta["prompt"])

	_, err = GetPngMetadata(bytes.NewReader([]byte("definitely not a png")))
	require.Error(t, err)
}

func TestNewWorkflowFromPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.png")
	require.NoError(t, os.WriteFile(path, pngWithText(t, PromptMetadataKey, img2imgWorkflow), 0o644))

	wf, err := NewWorkflowFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "KSampler", wf["36"].ClassType)

	_, err = NewWorkflowFromPNGReader(bytes.NewReader(pngWithText(t, "workflow", "{}")))
	require.Error(t, err)
}
