package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/pkg/jobs"
)

type activityRepository interface {
	Insert(ctx context.Context, entry *models.ActivityLog) error
	ListRecentForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error)
}

// AuditRecorder is the write side of the activity trail.
type AuditRecorder interface {
	Record(ctx context.Context, userID, action string, meta map[string]interface{})
}

type requestMetaKey struct{}

// ContextWithRequestMeta attaches HTTP request details for activity entries.
func ContextWithRequestMeta(ctx context.Context, meta models.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the request details stored by ContextWithRequestMeta.
func RequestMetaFromContext(ctx context.Context) (models.RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(models.RequestMeta)
	return meta, ok
}

// AuditConfig sizes the background writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

const auditJobType = "activity_log"

// AuditService records user activity asynchronously. Recording never fails
// the calling request: problems are logged and counted.
type AuditService struct {
	repo    activityRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService wires the activity repository to a worker queue. Call Start
// before recording and Stop on shutdown.
func NewAuditService(repo activityRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, metrics: metrics, logger: logger, now: time.Now}
	s.queue = jobs.NewQueue("activity-log", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the writer workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes pending entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an activity entry for userID.
func (s *AuditService) Record(ctx context.Context, userID, action string, meta map[string]interface{}) {
	if userID == "" || action == "" {
		return
	}
	entry := s.buildEntry(ctx, userID, action, meta)
	if err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: entry}); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("failed to queue activity log",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// ListForUser returns the latest limit entries for userID.
func (s *AuditService) ListForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	return s.repo.ListRecentForUser(ctx, userID, limit)
}

func (s *AuditService) buildEntry(ctx context.Context, userID, action string, meta map[string]interface{}) *models.ActivityLog {
	entry := &models.ActivityLog{
		UserID:    userID,
		Action:    action,
		CreatedAt: s.now().UTC(),
	}
	if reqMeta, ok := RequestMetaFromContext(ctx); ok {
		entry.IP = optionalString(reqMeta.IP)
		entry.UserAgent = optionalString(reqMeta.UserAgent)
		entry.RequestID = optionalString(reqMeta.RequestID)
		entry.Method = optionalString(reqMeta.Method)
		entry.URL = optionalString(reqMeta.URL)
		if !reqMeta.StartedAt.IsZero() {
			latency := float64(s.now().Sub(reqMeta.StartedAt).Microseconds()) / 1000
			entry.LatencyMS = &latency
		}
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			s.logger.Warn("discarding unencodable activity meta", zap.String("action", action), zap.Error(err))
		} else {
			entry.Meta = types.JSONText(raw)
		}
	}
	return entry
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.ActivityLog)
	if !ok {
		s.logger.Error("unexpected activity job payload", zap.String("job_id", job.ID))
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.Insert(writeCtx, entry); err != nil {
		return fmt.Errorf("insert activity %s: %w", entry.Action, err)
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
