package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

type ImageType string

const (
	InputImageType  ImageType = "input"
	TempImageType   ImageType = "temp"
	OutputImageType ImageType = "output"
)

// UploadOptions are the optional form fields of an image upload.
type UploadOptions struct {
	Overwrite bool
	Type      ImageType
	Subfolder string
}

type uploadResponse struct {
	Name      *string `json:"name"`
	Subfolder string  `json:"subfolder"`
	Type      string  `json:"type"`
}

// UploadFileFromReader uploads the image data read from r and returns the
// server side path to reference it with: "subfolder/name", or just "name"
// when the server stored it at the top level. The name may differ from
// filename when the server chose another one.
func (c *ComfyClient) UploadFileFromReader(ctx context.Context, r io.Reader, filename string, opts UploadOptions) (string, error) {
	const op = "upload image"

	// Create a buffer to store the request body
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	// Create a form-file for the image and copy the image data into it
	formFile, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(formFile, r); err != nil {
		return "", err
	}

	if opts.Overwrite {
		_ = writer.WriteField("overwrite", "true")
	}
	if opts.Type != "" {
		_ = writer.WriteField("type", string(opts.Type))
	}
	if opts.Subfolder != "" {
		_ = writer.WriteField("subfolder", opts.Subfolder)
	}

	// Close the writer to finalize the body content
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload/image", nil), &requestBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(op, req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}

	data := &uploadResponse{}
	if err := json.Unmarshal(body, data); err != nil {
		return "", &ProtocolError{Op: op, Err: err}
	}
	if data.Name == nil || *data.Name == "" {
		return "", missingField(op, "name")
	}

	path := *data.Name
	if data.Subfolder != "" {
		path = data.Subfolder + "/" + path
	}
	return path, nil
}

// UploadFileFromPath uploads the image file at filePath.
func (c *ComfyClient) UploadFileFromPath(ctx context.Context, filePath string, opts UploadOptions) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return c.UploadFileFromReader(ctx, file, filepath.Base(filePath), opts)
}

// UploadImage encodes img as PNG and uploads it.
func (c *ComfyClient) UploadImage(ctx context.Context, img image.Image, filename string, opts UploadOptions) (string, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return "", err
	}
	return c.UploadFileFromReader(ctx, &buffer, filepath.Base(filename), opts)
}
