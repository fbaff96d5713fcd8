package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/quota"
)

func testWorkspace() *models.Workspace {
	return &models.Workspace{ID: uuid.New(), Name: "ws", OwnerUserID: uuid.New()}
}

func testActor() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleEditor, Authenticated: true}
}

func uploadInput(ws *models.Workspace) UploadInput {
	return UploadInput{
		WorkspaceID: ws.ID,
		Actor:       testActor(),
		FileName:    "policy.txt",
		MimeType:    "text/plain",
		Content:     strings.NewReader("los empleados tienen 22 días de vacaciones"),
	}
}

func TestUpload_HappyPath(t *testing.T) {
	ws := testWorkspace()
	store := newMemDocStore()
	blobs := newMemBlobs()
	jobs := &stubQueue{}
	audit := &recordingAudit{}
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, store, blobs, jobs, nil, audit, NewExtractor(), nil)

	doc, err := uc.Upload(context.Background(), uploadInput(ws))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, models.StorageKeyFor(doc.ID, "policy.txt"), doc.StorageKey)
	assert.Contains(t, blobs.blobs, doc.StorageKey)
	assert.Equal(t, []string{doc.ID.String()}, jobs.enqueued)
	assert.Equal(t, 1, audit.count())
}

func TestUpload_MissingMetadataIsValidation(t *testing.T) {
	uc := NewUploadUseCase(&allowAllPolicy{workspace: testWorkspace()}, newMemDocStore(),
		newMemBlobs(), &stubQueue{}, nil, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), UploadInput{MimeType: "text/plain"})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestUpload_UnsupportedMimeTypeRejectedBeforeStorage(t *testing.T) {
	ws := testWorkspace()
	blobs := newMemBlobs()
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, newMemDocStore(),
		blobs, &stubQueue{}, nil, nil, NewExtractor(), nil)

	input := uploadInput(ws)
	input.MimeType = "application/zip"
	_, err := uc.Upload(context.Background(), input)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.Empty(t, blobs.blobs)
}

func TestUpload_UnconfiguredStorageFailsFast(t *testing.T) {
	ws := testWorkspace()
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, newMemDocStore(),
		nil, &stubQueue{}, nil, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), uploadInput(ws))
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))
}

func TestUpload_UnconfiguredQueueFailsFast(t *testing.T) {
	ws := testWorkspace()
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, newMemDocStore(),
		newMemBlobs(), nil, nil, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), uploadInput(ws))
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))
}

func TestUpload_EnqueueFailureFailsDocumentAndDeletesBlob(t *testing.T) {
	ws := testWorkspace()
	store := newMemDocStore()
	blobs := newMemBlobs()
	jobs := &stubQueue{err: assert.AnError}
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, store, blobs, jobs, nil, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), uploadInput(ws))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))

	// The row is FAILED and the orphan blob is gone
	require.Len(t, store.docs, 1)
	for _, doc := range store.docs {
		assert.Equal(t, models.StatusFailed, doc.Status)
	}
	assert.Empty(t, blobs.blobs)
	assert.NotEmpty(t, blobs.deleted)
}

func TestUpload_QuotaDenied(t *testing.T) {
	ws := testWorkspace()
	limiter := quotaAt(t, 1)
	uc := NewUploadUseCase(&allowAllPolicy{workspace: ws}, newMemDocStore(),
		newMemBlobs(), &stubQueue{}, limiter, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), uploadInput(ws))
	require.NoError(t, err)

	_, err = uc.Upload(context.Background(), uploadInput(ws))
	require.Error(t, err)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, models.QuotaUploads, exceeded.Resource)
	assert.Greater(t, exceeded.Decision.RetryAfterSeconds, int64(0))
}

func quotaAt(t *testing.T, uploadsPerHour int64) *quota.Limiter {
	t.Helper()
	return quota.NewLimiter(quota.NewMemoryStore(), quota.Limits{UploadsPerHour: uploadsPerHour})
}

func TestUpload_WritePolicyDenialPropagates(t *testing.T) {
	uc := NewUploadUseCase(&allowAllPolicy{err: apperrors.NotFound("workspace not found")},
		newMemDocStore(), newMemBlobs(), &stubQueue{}, nil, nil, NewExtractor(), nil)

	_, err := uc.Upload(context.Background(), uploadInput(testWorkspace()))
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}
