package connectors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trialsnap/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	// Ignored counts messages without any report attachment.
	Ignored int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    logger,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, provider, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		names, err := ReportAttachments(msg.Raw)
		if err != nil || len(names) == 0 {
			s.logger.Debug("no report attachments", zap.String("message_id", msg.MessageID), zap.Error(err))
			result.Ignored++
			continue
		}
		row, err := s.store.Store(msg)
		if err != nil {
			return result, err
		}
		s.logger.Info("stored report email",
			zap.Int("email_id", row.ID),
			zap.String("subject", row.Subject),
			zap.Strings("attachments", names),
		)
		result.Stored++
	}

	if err := s.db.SetMetadata("mail_last_fetch:"+provider, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, err
	}
	return result, nil
}
