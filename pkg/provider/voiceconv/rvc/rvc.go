// Package rvc provides a voice conversion backend speaking the HTTP API of
// an RVC (retrieval-based voice conversion) inference server. The server
// takes a WAV upload plus a model name and responds with the converted WAV.
package rvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvoss/parley/pkg/provider/voiceconv"
)

const defaultTimeout = 60 * time.Second

// Compile-time assertion that Converter implements voiceconv.Converter.
var _ voiceconv.Converter = (*Converter)(nil)

// Option is a functional option for configuring a Converter.
type Option func(*Converter)

// WithHTTPClient replaces the default HTTP client and its 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cv *Converter) { cv.httpClient = c }
}

// WithPitchShift sets the semitone pitch offset applied during conversion.
func WithPitchShift(semitones int) Option {
	return func(cv *Converter) { cv.pitch = semitones }
}

// Converter implements voiceconv.Converter against an RVC inference server.
type Converter struct {
	serverURL  string
	model      string
	pitch      int
	httpClient *http.Client
}

// New creates a Converter for the RVC server at serverURL using the named
// voice model. Both must be non-empty.
func New(serverURL, model string, opts ...Option) (*Converter, error) {
	if serverURL == "" {
		return nil, errors.New("rvc: serverURL must not be empty")
	}
	if model == "" {
		return nil, errors.New("rvc: model must not be empty")
	}
	cv := &Converter{
		serverURL:  strings.TrimRight(serverURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(cv)
	}
	return cv, nil
}

// Convert uploads the WAV at inPath and writes the server's response next
// to it with a ".converted.wav" suffix, returning the new path.
func (cv *Converter) Convert(ctx context.Context, inPath string) (string, error) {
	wav, err := os.ReadFile(inPath)
	if err != nil {
		return "", fmt.Errorf("rvc: read input: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", filepath.Base(inPath))
	if err != nil {
		return "", fmt.Errorf("rvc: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("rvc: write wav data: %w", err)
	}
	if err := mw.WriteField("model", cv.model); err != nil {
		return "", fmt.Errorf("rvc: write model field: %w", err)
	}
	if cv.pitch != 0 {
		if err := mw.WriteField("f0_up_key", fmt.Sprintf("%d", cv.pitch)); err != nil {
			return "", fmt.Errorf("rvc: write pitch field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("rvc: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cv.serverURL+"/convert", &body)
	if err != nil {
		return "", fmt.Errorf("rvc: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := cv.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rvc: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rvc: server returned HTTP %d", resp.StatusCode)
	}

	outPath := strings.TrimSuffix(inPath, ".wav") + ".converted.wav"
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("rvc: create output: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(outPath)
		return "", fmt.Errorf("rvc: write output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("rvc: close output: %w", err)
	}
	return outPath, nil
}
