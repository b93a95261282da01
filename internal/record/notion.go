package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/cardlead/internal/common"
)

// maxChildrenPerAppend is the destination's limit on blocks per append call.
const maxChildrenPerAppend = 100

// defaultRequestsPerSecond is Notion's documented average request rate per integration.
const defaultRequestsPerSecond = 3

// NotionConfig configures the Notion database client.
type NotionConfig struct {
	Token      string
	DatabaseID string
	Version    string        // Notion-Version header, default 2022-06-28
	BaseURL    string        // default https://api.notion.com/v1
	Timeout    time.Duration // http client timeout
	// RequestsPerSecond is shared by every worker; zero means the default, negative disables.
	RequestsPerSecond float64
}

// NotionStore creates pages in a Notion database.
type NotionStore struct {
	cfg        NotionConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

var _ Store = (*NotionStore)(nil)

func NewNotionStore(cfg NotionConfig, logger *slog.Logger) *NotionStore {
	if cfg.Version == "" {
		cfg.Version = "2022-06-28"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.notion.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return &NotionStore{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		log:        logger,
	}
}

type pageRequest struct {
	Parent     map[string]string `json:"parent"`
	Properties Properties        `json:"properties"`
}

type imageBlock struct {
	Object string `json:"object"`
	Type   string `json:"type"`
	Image  struct {
		Type     string `json:"type"`
		External struct {
			URL string `json:"url"`
		} `json:"external"`
	} `json:"image"`
}

func newImageBlock(u string) imageBlock {
	var b imageBlock
	b.Object = "block"
	b.Type = "image"
	b.Image.Type = "external"
	b.Image.External.URL = u
	return b
}

func (s *NotionStore) CreateRecord(ctx context.Context, props Properties) (string, error) {
	start := time.Now()
	raw, err := s.do(ctx, http.MethodPost, "/pages", "create_page", pageRequest{
		Parent:     map[string]string{"database_id": s.cfg.DatabaseID},
		Properties: props,
	})
	if err != nil {
		return "", err
	}
	var page struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decode notion page: %w", err)
	}
	if page.ID == "" {
		return "", common.NewRemoteRejection("notion", "create_page", http.StatusOK, "response carried no page id")
	}
	s.log.Info("notion.page.created", "page_id", page.ID, "elapsed_ms", time.Since(start).Milliseconds())
	return page.ID, nil
}

func (s *NotionStore) AppendImageBlocks(ctx context.Context, recordID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	path := "/blocks/" + url.PathEscape(recordID) + "/children"
	for start := 0; start < len(urls); start += maxChildrenPerAppend {
		end := min(start+maxChildrenPerAppend, len(urls))
		children := make([]imageBlock, 0, end-start)
		for _, u := range urls[start:end] {
			children = append(children, newImageBlock(u))
		}
		if _, err := s.do(ctx, http.MethodPatch, path, "append_blocks", map[string]any{"children": children}); err != nil {
			return err
		}
	}
	s.log.Info("notion.blocks.appended", "page_id", recordID, "images", len(urls))
	return nil
}

func (s *NotionStore) do(ctx context.Context, method, path, op string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("notion %s: %w", op, err)
	}
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", s.cfg.Version)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.log.Warn("notion.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read notion %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warn("notion.http.rejected", "op", op, "status", resp.StatusCode)
		return nil, common.NewRemoteRejection("notion", op, resp.StatusCode, string(raw))
	}
	return raw, nil
}
