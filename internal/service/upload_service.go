package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/ratelimit"
)

type uploadStorage interface {
	SaveStream(key string, r io.Reader) (string, error)
	Stat(key string) (int64, bool, error)
	Delete(key string) error
}

type uploadSigner interface {
	Generate(refID, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (refID, key string, expiresAt time.Time, err error)
}

type uploadModuleStore interface {
	Create(ctx context.Context, module *models.LearningModule) error
	CountByOrg(ctx context.Context, orgID string) (int, error)
}

type uploadOrgStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

type processingEnqueuer interface {
	Enqueue(moduleID string) error
}

// UploadConfig governs file acceptance rules.
type UploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	UploadURLBase    string
}

// UploadService implements the two-phase upload flow: reserve a signed slot,
// receive the bytes, then confirm and kick off processing.
type UploadService struct {
	storage    uploadStorage
	signer     uploadSigner
	modules    uploadModuleStore
	orgs       uploadOrgStore
	processing processingEnqueuer
	limiter    actionLimiter
	burst      *ratelimit.TokenBucket
	logger     *zap.Logger
	cfg        UploadConfig
}

// UploadServiceParams collects the service dependencies.
type UploadServiceParams struct {
	Storage    uploadStorage
	Signer     uploadSigner
	Modules    uploadModuleStore
	Orgs       uploadOrgStore
	Processing processingEnqueuer
	Limiter    actionLimiter
	Burst      *ratelimit.TokenBucket
	Logger     *zap.Logger
	Config     UploadConfig
}

// NewUploadService constructs the upload service.
func NewUploadService(params UploadServiceParams) *UploadService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Config.MaxFileSizeBytes <= 0 {
		params.Config.MaxFileSizeBytes = 50 << 20
	}
	if len(params.Config.AllowedMIMEs) == 0 {
		params.Config.AllowedMIMEs = []string{"application/pdf"}
	}
	return &UploadService{
		storage:    params.Storage,
		signer:     params.Signer,
		modules:    params.Modules,
		orgs:       params.Orgs,
		processing: params.Processing,
		limiter:    params.Limiter,
		burst:      params.Burst,
		logger:     params.Logger,
		cfg:        params.Config,
	}
}

// CreateUpload validates the request, enforces rate and plan ceilings and
// reserves a signed upload slot.
func (s *UploadService) CreateUpload(ctx context.Context, claims *models.JWTClaims, req dto.CreateUploadRequest) (*dto.CreateUploadResponse, error) {
	if s.burst != nil {
		if err := s.burst.Take(claims.UserID); err != nil {
			return nil, err
		}
	}
	if s.limiter != nil {
		if err := s.limiter.Check(claims.UserID, ratelimit.ActionPDFUpload); err != nil {
			return nil, err
		}
	}

	if err := s.validateFile(req); err != nil {
		return nil, err
	}
	if err := s.checkPlanCeiling(ctx, claims.OrgID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.pdf", claims.OrgID, uuid.NewString())
	token, expiresAt, err := s.signer.Generate(claims.UserID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign upload token")
	}

	return &dto.CreateUploadResponse{
		FileKey:     key,
		UploadToken: token,
		UploadURL:   fmt.Sprintf("%s/%s", strings.TrimRight(s.cfg.UploadURLBase, "/"), token),
		ExpiresAt:   expiresAt,
	}, nil
}

// ReceiveUpload stores the streamed bytes against a previously issued token.
func (s *UploadService) ReceiveUpload(ctx context.Context, token string, body io.Reader, declaredSize int64) (string, error) {
	_, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired upload token")
	}
	if declaredSize > s.cfg.MaxFileSizeBytes {
		return "", appErrors.Clone(appErrors.ErrFileValidation, "file exceeds the maximum allowed size")
	}

	// Cap the stream one byte past the limit so an understated Content-Length
	// cannot smuggle an oversized file.
	limited := io.LimitReader(body, s.cfg.MaxFileSizeBytes+1)
	if _, err := s.storage.SaveStream(key, limited); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	size, _, err := s.storage.Stat(key)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify upload")
	}
	if size > s.cfg.MaxFileSizeBytes {
		_ = s.storage.Delete(key)
		return "", appErrors.Clone(appErrors.ErrFileValidation, "file exceeds the maximum allowed size")
	}
	if size == 0 {
		_ = s.storage.Delete(key)
		return "", appErrors.Clone(appErrors.ErrFileValidation, "uploaded file is empty")
	}
	return key, nil
}

// CompleteUpload confirms the stored file and creates the pending module.
func (s *UploadService) CompleteUpload(ctx context.Context, claims *models.JWTClaims, req dto.CompleteUploadRequest, fileName string) (*models.LearningModule, error) {
	_, key, _, err := s.signer.Parse(req.UploadToken, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired upload token")
	}

	size, exists, err := s.storage.Stat(key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check upload")
	}
	if !exists || size == 0 {
		return nil, appErrors.Clone(appErrors.ErrFileValidation, "no uploaded file found for this token")
	}

	// Ceiling re-checked at confirm time: the reserve call may be long gone.
	if err := s.checkPlanCeiling(ctx, claims.OrgID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}
	if title == "" {
		title = "Untitled module"
	}

	module := &models.LearningModule{
		OrgID:       claims.OrgID,
		CreatedBy:   claims.UserID,
		Title:       title,
		Description: req.Description,
		FileKey:     key,
		FileName:    filepath.Base(fileName),
		Status:      models.ModulePending,
	}
	if err := s.modules.Create(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}

	if err := s.processing.Enqueue(module.ID); err != nil {
		s.logger.Sugar().Errorw("failed to enqueue processing after upload", "module_id", module.ID, "error", err)
		return nil, err
	}
	return module, nil
}

func (s *UploadService) validateFile(req dto.CreateUploadRequest) error {
	name := req.FileName
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return appErrors.Clone(appErrors.ErrFileValidation, "invalid file name")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return appErrors.Clone(appErrors.ErrFileValidation, "only PDF files are accepted")
	}

	allowed := false
	for _, mime := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(req.ContentType, mime) {
			allowed = true
			break
		}
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrFileValidation, fmt.Sprintf("unsupported content type %q", req.ContentType))
	}

	if req.FileSize <= 0 {
		return appErrors.Clone(appErrors.ErrFileValidation, "file is empty")
	}
	// A file of exactly the maximum size is accepted.
	if req.FileSize > s.cfg.MaxFileSizeBytes {
		return appErrors.Clone(appErrors.ErrFileValidation, "file exceeds the maximum allowed size")
	}
	return nil
}

func (s *UploadService) checkPlanCeiling(ctx context.Context, orgID string) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if org.SubscriptionStatus != models.SubscriptionActive {
		return appErrors.Clone(appErrors.ErrPlanLimit, "subscription is not active")
	}

	limits := models.LimitsFor(org.Plan)
	if limits.MaxModules == 0 {
		return nil
	}
	count, err := s.modules.CountByOrg(ctx, orgID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count modules")
	}
	if count >= limits.MaxModules {
		return appErrors.ErrPlanLimit
	}
	return nil
}
