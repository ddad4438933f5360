package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/export"
	"github.com/modulearn/modulearn-api/pkg/storage"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportAssignmentStore interface {
	ListByModule(ctx context.Context, moduleID string) ([]models.AssignmentDetail, error)
}

type exportProgressStore interface {
	Summary(ctx context.Context, userID, moduleID string) (*models.ModuleProgressSummary, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string       `json:"-"`
	Token        string       `json:"-"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// ExportService renders module progress reports and serves them through
// signed, expiring URLs.
type ExportService struct {
	modules     sectionModuleStore
	assignments exportAssignmentStore
	progress    exportProgressStore
	storage     exportFileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(modules sectionModuleStore, assignments exportAssignmentStore, progress exportProgressStore, files exportFileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		modules:     modules,
		assignments: assignments,
		progress:    progress,
		storage:     files,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// GenerateModuleReport renders the per-learner progress roster for one module
// and stores the file behind a signed URL.
func (s *ExportService) GenerateModuleReport(ctx context.Context, orgID, moduleID string, format ExportFormat) (*ExportResult, error) {
	module, err := s.modules.GetByID(ctx, orgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	dataset, err := s.buildDataset(ctx, module)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(*dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(*dataset, fmt.Sprintf("Progress report: %s", module.Title))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("progress-%s-%d.%s", module.ID, time.Now().UTC().Unix(), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(module.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export token")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ResolveDownload validates the token and opens the stored file.
func (s *ExportService) ResolveDownload(token string) (*ExportDownload, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	parts := strings.Split(relPath, "/")
	return &ExportDownload{
		File:      file,
		Filename:  parts[len(parts)-1],
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired export files.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Sugar().Warnw("export cleanup failed", "error", err)
					continue
				}
				if len(removed) > 0 {
					s.logger.Sugar().Infow("expired exports removed", "count", len(removed))
				}
			}
		}
	}()
}

func (s *ExportService) buildDataset(ctx context.Context, module *models.LearningModule) (*export.Dataset, error) {
	roster, err := s.assignments.ListByModule(ctx, module.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	rows := make([]map[string]string, 0, len(roster))
	for _, assignment := range roster {
		summary, err := s.progress.Summary(ctx, assignment.UserID, module.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner progress")
		}
		status := "in progress"
		if assignment.CompletedAt != nil {
			status = "completed"
		} else if summary.SectionsCompleted == 0 {
			status = "not started"
		}
		rows = append(rows, map[string]string{
			"Learner":       assignment.UserName,
			"Email":         assignment.UserEmail,
			"Status":        status,
			"Sections":      fmt.Sprintf("%d/%d", summary.SectionsCompleted, summary.SectionsTotal),
			"Progress":      strconv.FormatFloat(summary.PercentComplete, 'f', 1, 64) + "%",
			"Minutes spent": strconv.Itoa(summary.TimeSpentSeconds / 60),
		})
	}

	return &export.Dataset{
		Headers: []string{"Learner", "Email", "Status", "Sections", "Progress", "Minutes spent"},
		Rows:    rows,
	}, nil
}
