package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"trialsnap/internal"
	"trialsnap/internal/config"
	"trialsnap/internal/connectors"
	"trialsnap/internal/storage"
)

// Email statuses after processing.
const (
	EmailProcessed   = "processed"
	EmailSchemaError = "schema_error"
	EmailSkipped     = "skipped"
	EmailFailed      = "failed"
)

type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	service *Service
	store   *connectors.MailStoreService
	logger  *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, service *Service, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{
		db:      db,
		cfg:     cfg,
		service: service,
		store:   connectors.NewMailStoreService(db, cfg.RawMailDir),
		logger:  logger,
	}
}

type ProcessResult struct {
	EmailID int
	Status  string
	RunID   string
	Output  string
	Err     error
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending runs the pipeline for up to limit fetched emails. Per-email
// pipeline failures are recorded on the email; only storage errors abort.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) ([]ProcessResult, error) {
	pending, err := s.db.ListEmailsByStatus(connectors.EmailFetched, provider, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProcessResult, 0, len(pending))
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	logger := s.logger.With(zap.Int("email_id", email.ID), zap.String("subject", email.Subject))
	res := ProcessResult{EmailID: email.ID}

	res.Status, res.RunID, res.Output, res.Err = s.process(ctx, email)
	if res.Err != nil {
		logger.Warn("email not processed", zap.String("status", res.Status), zap.Error(res.Err))
	} else {
		logger.Info("email processed", zap.String("run_id", res.RunID), zap.String("output", res.Output))
	}

	if err := s.db.UpdateEmailStatus(email.ID, res.Status); err != nil {
		return res, err
	}
	return res, nil
}

func (s *ProcessingService) process(ctx context.Context, email internal.EmailRow) (status, runID, output string, err error) {
	raw, err := s.store.Load(email)
	if err != nil {
		return EmailFailed, "", "", err
	}

	in, err := InputsFromEmail(raw, s.cfg.LoaderOptions())
	var bundleErr *BundleError
	if errors.As(err, &bundleErr) {
		return EmailSkipped, "", "", err
	}
	if err != nil {
		return EmailFailed, "", "", err
	}
	in.Origin = "email:" + strconv.Itoa(email.ID)
	in.EmailID = email.ID

	kpiCfg, err := s.cfg.KPI()
	if err != nil {
		return EmailFailed, "", "", err
	}

	result, err := s.service.Run(ctx, in, kpiCfg)
	if err != nil {
		if RunStatus(err) == internal.RunSchemaError {
			return EmailSchemaError, "", "", err
		}
		return EmailFailed, "", "", err
	}

	output = filepath.Join(s.cfg.OutputDir, fmt.Sprintf("email-%d-%s.xlsx", email.ID, result.Identity[:8]))
	if err := ExportXLSX(result, output); err != nil {
		return EmailFailed, result.RunID, "", err
	}
	return EmailProcessed, result.RunID, output, nil
}
