package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jpmendieta/taskflow-api/internal/models"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
	"github.com/jpmendieta/taskflow-api/pkg/export"
	"github.com/jpmendieta/taskflow-api/pkg/storage"
)

var taskExportHeaders = []string{"Title", "Description", "Assignee", "Time", "Status"}

// ExportService renders the task board into downloadable files. When a
// store is configured, each render is persisted and can be fetched
// again through a signed token.
type ExportService struct {
	repo    taskRepository
	store   *storage.ExportStore
	signer  *storage.TokenSigner
	enabled bool
	logger  *zap.Logger
}

// NewExportService constructs an ExportService. Store and signer are
// optional, without them exports are served inline only.
func NewExportService(repo taskRepository, store *storage.ExportStore, signer *storage.TokenSigner, enabled bool, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{repo: repo, store: store, signer: signer, enabled: enabled, logger: logger}
}

// Enabled indicates whether exports are turned on.
func (s *ExportService) Enabled() bool {
	return s != nil && s.enabled
}

// Tasks exports the current task board in the requested format. The
// selection mirrors the list endpoint's filter but is never paginated:
// every matching task appears, and without a status filter only open
// ones do. The returned token, when non-empty, re-downloads the
// persisted copy.
func (s *ExportService) Tasks(ctx context.Context, filter models.TaskFilter, format export.Format) ([]byte, string, error) {
	tasks, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks for export")
	}

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.Title,
			t.Description,
			t.Owner().ShortName,
			t.Time,
			t.Status.Display(),
		})
	}

	data := export.Dataset{Title: "Task Board", Headers: taskExportHeaders, Rows: rows}
	payload, err := export.Render(data, format)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	token := s.persist(payload, format)
	s.logger.Info("exported task board", zap.Int("rows", len(rows)), zap.String("format", string(format)))
	return payload, token, nil
}

// Download resolves a signed token to the stored file path.
func (s *ExportService) Download(token string) (string, export.Format, error) {
	if s.store == nil || s.signer == nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export downloads are disabled")
	}
	_, name, err := s.signer.Verify(token)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "download link is invalid or expired")
	}
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "download link is invalid or expired")
	}
	return s.store.Path(name), format, nil
}

// Cleanup removes persisted exports older than the given TTL.
func (s *ExportService) Cleanup(ttl time.Duration) {
	if s.store == nil {
		return
	}
	deleted, err := s.store.Sweep(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("removed stale exports", zap.Int("count", len(deleted)))
	}
}

// persist writes the payload to the store and mints a download token.
// Persistence failures degrade to inline-only delivery.
func (s *ExportService) persist(payload []byte, format export.Format) string {
	if s.store == nil || s.signer == nil {
		return ""
	}
	exportID := uuid.NewString()
	filename := fmt.Sprintf("tasks/%s_%s.%s", time.Now().UTC().Format("20060102"), exportID, format)
	if _, err := s.store.Save(filename, payload); err != nil {
		s.logger.Warn("failed to persist export", zap.Error(err))
		return ""
	}
	token, _, err := s.signer.Sign(exportID, filename)
	if err != nil {
		s.logger.Warn("failed to sign export token", zap.Error(err))
		return ""
	}
	return token
}
