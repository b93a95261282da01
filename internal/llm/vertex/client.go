package vertex

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/llm"
)

// Config for the Gemini vision completer.
type Config struct {
	ProjectID   string
	Region      string
	Model       string        // default gemini-1.5-flash
	Temperature float32
	Timeout     time.Duration // per call; default 60s
}

// Client implements llm.VisionCompleter on Vertex AI.
type Client struct {
	base     *genai.Client
	generate func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	cfg      Config
	log      *slog.Logger
}

var _ llm.VisionCompleter = (*Client)(nil)

// NewClient dials Vertex AI with application default credentials.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		ResponseMIMEType: "application/json",
	}
	return &Client{base: base, generate: model.GenerateContent, cfg: cfg, log: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.base.Close()
}

func (c *Client) Complete(ctx context.Context, req llm.VisionRequest) (string, error) {
	start := time.Now()
	image, err := imagePart(req.ImageURL)
	if err != nil {
		return "", err
	}
	ctx, cancel := common.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.generate(ctx, image, genai.Text(req.Instruction))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := responseText(resp)
	c.log.Info("llm.complete.ok",
		"provider", "vertex",
		"model", c.cfg.Model,
		"content_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// imagePart maps an image reference onto a Gemini part. Cloud Storage URLs
// become gs:// file data, data URLs and local files are sent inline.
func imagePart(ref string) (genai.Part, error) {
	if uri, ok := gcsURI(ref); ok {
		return genai.FileData{MIMEType: constants.ContentTypeFor(path.Ext(uri)), FileURI: uri}, nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return genai.FileData{MIMEType: constants.ContentTypeFor(path.Ext(ref)), FileURI: ref}, nil
	}
	dataURL, err := llm.ResolveImageURL(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve image: %w", err)
	}
	return decodeDataURL(dataURL)
}

func gcsURI(ref string) (string, bool) {
	if strings.HasPrefix(ref, "gs://") {
		return ref, true
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host != "storage.googleapis.com" {
		return "", false
	}
	p, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
	if err != nil || p == "" {
		return "", false
	}
	return "gs://" + p, true
}

func decodeDataURL(s string) (genai.Part, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data url")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return genai.Blob{MIMEType: strings.TrimSuffix(meta, ";base64"), Data: b}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
