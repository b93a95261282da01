package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/async"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/pipeline"
)

// ProcessIDHeader carries the minted process id back in the response header.
const ProcessIDHeader = "x-process-id"

// Starter is the part of the orchestrator the intake service drives.
type Starter interface {
	Start(ctx context.Context, sub pipeline.Submission) (entity.ProcessID, error)
}

type inlineImage struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64
}

type submitRequest struct {
	CardPath      string                 `json:"card_path"`
	HearingPaths  []string               `json:"hearing_paths"`
	CardImage     *inlineImage           `json:"card_image"`
	HearingImages []inlineImage          `json:"hearing_images"`
	LeadDate      string                 `json:"lead_date"`
	Context       entity.PipelineContext `json:"context"`
}

// IntakeService turns Submit calls into pipeline submissions. Inline images
// are written to the spool directory under unique names; path references
// must already live inside it because the pipeline deletes them.
type IntakeService struct {
	starter  Starter
	spoolDir string
	logger   *slog.Logger
}

var _ IntakeServer = (*IntakeService)(nil)

func NewIntakeService(starter Starter, spoolDir string, logger *slog.Logger) (*IntakeService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(spoolDir)
	if err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, common.LocalIOError("create spool dir", abs, err)
	}
	return &IntakeService{starter: starter, spoolDir: abs, logger: logger}, nil
}

func (s *IntakeService) Submit(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	log := common.LoggerFrom(ctx, s.logger)

	sr, err := decodeSubmit(req)
	if err != nil {
		log.Warn("intake.submit.decode_failed", "error", err)
		return nil, common.InvalidArgumentError(err.Error())
	}

	sub, spooled, err := s.toSubmission(sr)
	if err != nil {
		removeAll(spooled)
		log.Warn("intake.submit.rejected", "error", err)
		return nil, common.InvalidArgumentError(err.Error())
	}

	pid, err := s.starter.Start(ctx, sub)
	if err != nil {
		removeAll(spooled)
		return nil, toStatus(err)
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(ProcessIDHeader, pid.String()))
	log.Info("intake.submit.accepted", "process_id", pid, "input_mode", sub.Context.InputMode)
	return &emptypb.Empty{}, nil
}

func decodeSubmit(req *structpb.Struct) (submitRequest, error) {
	var sr submitRequest
	if req == nil {
		return sr, errors.New("empty request")
	}
	stringifyScores(req)
	raw, err := protojson.Marshal(req)
	if err != nil {
		return sr, fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(raw, &sr); err != nil {
		return sr, fmt.Errorf("decode request: %w", err)
	}
	return sr, nil
}

// stringifyScores lets the form send the need, authority and timing scores
// as numbers.
func stringifyScores(req *structpb.Struct) {
	pc := req.GetFields()["context"].GetStructValue()
	if pc == nil {
		return
	}
	for _, k := range []string{"need", "authority", "timing"} {
		if n, ok := pc.Fields[k].GetKind().(*structpb.Value_NumberValue); ok {
			pc.Fields[k] = structpb.NewStringValue(strconv.FormatFloat(n.NumberValue, 'f', -1, 64))
		}
	}
}

func (s *IntakeService) toSubmission(sr submitRequest) (pipeline.Submission, []string, error) {
	sub := pipeline.Submission{LeadDate: sr.LeadDate, Context: sr.Context}
	var spooled []string

	switch {
	case sr.CardImage != nil:
		p, err := s.spool(*sr.CardImage)
		if err != nil {
			return sub, spooled, fmt.Errorf("card_image: %w", err)
		}
		spooled = append(spooled, p)
		sub.CardPath = p
	case sr.CardPath != "":
		p, err := s.inSpool(sr.CardPath)
		if err != nil {
			return sub, spooled, fmt.Errorf("card_path: %w", err)
		}
		sub.CardPath = p
	}

	for i, img := range sr.HearingImages {
		p, err := s.spool(img)
		if err != nil {
			return sub, spooled, fmt.Errorf("hearing_images[%d]: %w", i, err)
		}
		spooled = append(spooled, p)
		sub.HearingPaths = append(sub.HearingPaths, p)
	}
	for i, hp := range sr.HearingPaths {
		p, err := s.inSpool(hp)
		if err != nil {
			return sub, spooled, fmt.Errorf("hearing_paths[%d]: %w", i, err)
		}
		sub.HearingPaths = append(sub.HearingPaths, p)
	}
	return sub, spooled, nil
}

// spool writes an inline image under a name no other submission can produce.
func (s *IntakeService) spool(img inlineImage) (string, error) {
	name := filepath.Base(strings.TrimSpace(img.Name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", errors.New("name is required")
	}
	if !constants.IsAllowedImage(filepath.Ext(name)) {
		return "", fmt.Errorf("unsupported image type %q", filepath.Ext(name))
	}
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return "", fmt.Errorf("data is not base64: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("data is empty")
	}
	p := filepath.Join(s.spoolDir, uuid.NewString()+"_"+name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", common.LocalIOError("spool", p, err)
	}
	return p, nil
}

func (s *IntakeService) inSpool(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.spoolDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the spool directory", p)
	}
	return abs, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return common.InvalidArgumentError(err.Error())
	case errors.Is(err, async.ErrQueueFull):
		return common.ResourceExhaustedError("pipeline queue is full, retry later")
	case errors.Is(err, async.ErrQueueClosed):
		return common.UnavailableError("pipeline is shutting down")
	default:
		return common.InternalErrorf("start pipeline: %v", err)
	}
}
