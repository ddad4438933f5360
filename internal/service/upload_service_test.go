package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/ratelimit"
)

type uploadStorageStub struct {
	files   map[string][]byte
	statErr error
}

func newUploadStorageStub() *uploadStorageStub {
	return &uploadStorageStub{files: map[string][]byte{}}
}

func (s *uploadStorageStub) SaveStream(key string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.files[key] = data
	return key, nil
}

func (s *uploadStorageStub) Stat(key string) (int64, bool, error) {
	if s.statErr != nil {
		return 0, false, s.statErr
	}
	data, ok := s.files[key]
	if !ok {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

func (s *uploadStorageStub) Delete(key string) error {
	delete(s.files, key)
	return nil
}

type signerStub struct {
	parseErr error
}

func (s signerStub) Generate(refID, key string) (string, time.Time, error) {
	return refID + "|" + key, time.Now().Add(15 * time.Minute), nil
}

func (s signerStub) Parse(token string, _ bool) (string, string, time.Time, error) {
	if s.parseErr != nil {
		return "", "", time.Time{}, s.parseErr
	}
	for i := range token {
		if token[i] == '|' {
			return token[:i], token[i+1:], time.Now().Add(15 * time.Minute), nil
		}
	}
	return "", "", time.Time{}, os.ErrInvalid
}

type uploadModuleStoreStub struct {
	created []*models.LearningModule
	count   int
}

func (s *uploadModuleStoreStub) Create(_ context.Context, module *models.LearningModule) error {
	module.ID = fmt.Sprintf("mod-%d", len(s.created)+1)
	s.created = append(s.created, module)
	return nil
}

func (s *uploadModuleStoreStub) CountByOrg(context.Context, string) (int, error) {
	return s.count, nil
}

type orgStoreStub struct {
	orgs map[string]*models.Organization
}

func (s orgStoreStub) GetByID(_ context.Context, id string) (*models.Organization, error) {
	org, ok := s.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return org, nil
}

type processingEnqueueStub struct {
	moduleIDs []string
}

func (s *processingEnqueueStub) Enqueue(moduleID string) error {
	s.moduleIDs = append(s.moduleIDs, moduleID)
	return nil
}

type limiterStub struct {
	err error
}

func (l limiterStub) Check(string, ratelimit.Action) error {
	return l.err
}

func uploadClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", OrgID: "org-1", Role: models.RoleAdmin}
}

func activeOrg(plan models.SubscriptionPlan) *models.Organization {
	return &models.Organization{ID: "org-1", Name: "Acme", Plan: plan, SubscriptionStatus: models.SubscriptionActive}
}

func newUploadServiceForTest(storage *uploadStorageStub, modules *uploadModuleStoreStub, org *models.Organization, queue *processingEnqueueStub, limiter actionLimiter) *UploadService {
	return NewUploadService(UploadServiceParams{
		Storage:    storage,
		Signer:     signerStub{},
		Modules:    modules,
		Orgs:       orgStoreStub{orgs: map[string]*models.Organization{"org-1": org}},
		Processing: queue,
		Limiter:    limiter,
		Logger:     zap.NewNop(),
		Config:     UploadConfig{MaxFileSizeBytes: 1024, UploadURLBase: "/api/v1/uploads"},
	})
}

func validUploadRequest() dto.CreateUploadRequest {
	return dto.CreateUploadRequest{FileName: "handbook.pdf", FileSize: 512, ContentType: "application/pdf"}
}

func TestCreateUploadIssuesSignedSlot(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	resp, err := svc.CreateUpload(context.Background(), uploadClaims(), validUploadRequest())
	require.NoError(t, err)
	assert.Contains(t, resp.FileKey, "org-1/")
	assert.Contains(t, resp.UploadURL, "/api/v1/uploads/")
	assert.NotEmpty(t, resp.UploadToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), resp.ExpiresAt, time.Minute)
}

func TestCreateUploadValidation(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	cases := []struct {
		name string
		req  dto.CreateUploadRequest
	}{
		{"path traversal", dto.CreateUploadRequest{FileName: "../evil.pdf", FileSize: 10, ContentType: "application/pdf"}},
		{"separator in name", dto.CreateUploadRequest{FileName: "a/b.pdf", FileSize: 10, ContentType: "application/pdf"}},
		{"wrong extension", dto.CreateUploadRequest{FileName: "doc.docx", FileSize: 10, ContentType: "application/pdf"}},
		{"wrong mime", dto.CreateUploadRequest{FileName: "doc.pdf", FileSize: 10, ContentType: "text/html"}},
		{"empty file", dto.CreateUploadRequest{FileName: "doc.pdf", FileSize: 0, ContentType: "application/pdf"}},
		{"over limit", dto.CreateUploadRequest{FileName: "doc.pdf", FileSize: 1025, ContentType: "application/pdf"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateUpload(context.Background(), uploadClaims(), tc.req)
			assert.ErrorIs(t, err, appErrors.ErrFileValidation)
		})
	}
}

func TestCreateUploadAcceptsExactMaxSize(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	req := validUploadRequest()
	req.FileSize = 1024
	_, err := svc.CreateUpload(context.Background(), uploadClaims(), req)
	assert.NoError(t, err)
}

func TestCreateUploadCaseInsensitiveExtension(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	req := validUploadRequest()
	req.FileName = "HANDBOOK.PDF"
	_, err := svc.CreateUpload(context.Background(), uploadClaims(), req)
	assert.NoError(t, err)
}

func TestCreateUploadRateLimited(t *testing.T) {
	rlErr := &appErrors.RateLimitError{Action: string(ratelimit.ActionPDFUpload), RetryAfter: time.Minute}
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, limiterStub{err: rlErr})

	_, err := svc.CreateUpload(context.Background(), uploadClaims(), validUploadRequest())
	var got *appErrors.RateLimitError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, time.Minute, got.RetryAfter)
}

func TestCreateUploadPlanCeiling(t *testing.T) {
	modules := &uploadModuleStoreStub{count: models.LimitsFor(models.PlanFree).MaxModules}
	svc := newUploadServiceForTest(newUploadStorageStub(), modules, activeOrg(models.PlanFree), &processingEnqueueStub{}, nil)

	_, err := svc.CreateUpload(context.Background(), uploadClaims(), validUploadRequest())
	assert.ErrorIs(t, err, appErrors.ErrPlanLimit)
}

func TestCreateUploadInactiveSubscription(t *testing.T) {
	org := activeOrg(models.PlanPro)
	org.SubscriptionStatus = models.SubscriptionPastDue
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, org, &processingEnqueueStub{}, nil)

	_, err := svc.CreateUpload(context.Background(), uploadClaims(), validUploadRequest())
	assert.ErrorIs(t, err, appErrors.ErrPlanLimit)
}

func TestReceiveUploadRejectsOversizedStream(t *testing.T) {
	storage := newUploadStorageStub()
	svc := newUploadServiceForTest(storage, &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	token, _, err := signerStub{}.Generate("user-1", "org-1/file.pdf")
	require.NoError(t, err)

	// Declared size lies; the stream itself is over the cap.
	body := bytes.NewReader(make([]byte, 2048))
	_, err = svc.ReceiveUpload(context.Background(), token, body, 512)
	assert.ErrorIs(t, err, appErrors.ErrFileValidation)
	_, exists, _ := storage.Stat("org-1/file.pdf")
	assert.False(t, exists)
}

func TestReceiveUploadRejectsEmptyBody(t *testing.T) {
	storage := newUploadStorageStub()
	svc := newUploadServiceForTest(storage, &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	token, _, err := signerStub{}.Generate("user-1", "org-1/file.pdf")
	require.NoError(t, err)

	_, err = svc.ReceiveUpload(context.Background(), token, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, appErrors.ErrFileValidation)
}

func TestReceiveUploadStoresFile(t *testing.T) {
	storage := newUploadStorageStub()
	svc := newUploadServiceForTest(storage, &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	token, _, err := signerStub{}.Generate("user-1", "org-1/file.pdf")
	require.NoError(t, err)

	key, err := svc.ReceiveUpload(context.Background(), token, bytes.NewReader([]byte("%PDF-1.7")), 8)
	require.NoError(t, err)
	assert.Equal(t, "org-1/file.pdf", key)
	assert.Equal(t, []byte("%PDF-1.7"), storage.files[key])
}

func TestCompleteUploadCreatesPendingModule(t *testing.T) {
	storage := newUploadStorageStub()
	storage.files["org-1/file.pdf"] = []byte("%PDF-1.7")
	modules := &uploadModuleStoreStub{}
	queue := &processingEnqueueStub{}
	svc := newUploadServiceForTest(storage, modules, activeOrg(models.PlanPro), queue, nil)

	token, _, err := signerStub{}.Generate("user-1", "org-1/file.pdf")
	require.NoError(t, err)

	module, err := svc.CompleteUpload(context.Background(), uploadClaims(), dto.CompleteUploadRequest{
		UploadToken: token,
	}, "Employee Handbook.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.ModulePending, module.Status)
	assert.Equal(t, "Employee Handbook", module.Title)
	assert.Equal(t, "org-1/file.pdf", module.FileKey)
	require.Len(t, queue.moduleIDs, 1)
	assert.Equal(t, module.ID, queue.moduleIDs[0])
}

func TestCompleteUploadWithoutStoredFile(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	token, _, err := signerStub{}.Generate("user-1", "org-1/file.pdf")
	require.NoError(t, err)

	_, err = svc.CompleteUpload(context.Background(), uploadClaims(), dto.CompleteUploadRequest{UploadToken: token}, "doc.pdf")
	assert.ErrorIs(t, err, appErrors.ErrFileValidation)
}

func TestCompleteUploadBadToken(t *testing.T) {
	svc := newUploadServiceForTest(newUploadStorageStub(), &uploadModuleStoreStub{}, activeOrg(models.PlanPro), &processingEnqueueStub{}, nil)

	_, err := svc.CompleteUpload(context.Background(), uploadClaims(), dto.CompleteUploadRequest{UploadToken: "garbage"}, "doc.pdf")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
