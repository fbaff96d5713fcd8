package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

func manageFixture(t *testing.T) (*ManageUseCase, *memDocStore, *memBlobs, *stubQueue, *models.Document) {
	t.Helper()
	store := newMemDocStore()
	blobs := newMemBlobs()
	jobs := &stubQueue{}
	doc := pendingDocument(t, store, blobs, "contenido")
	ws := &models.Workspace{ID: doc.WorkspaceID, Name: "ws"}
	uc := NewManageUseCase(&allowAllPolicy{workspace: ws}, store, blobs, jobs, nil, nil)
	return uc, store, blobs, jobs, doc
}

func setStatus(t *testing.T, store *memDocStore, doc *models.Document, to models.DocumentStatus) {
	t.Helper()
	_, err := store.TransitionStatus(context.Background(), doc.WorkspaceID, doc.ID,
		[]models.DocumentStatus{models.StatusPending, models.StatusProcessing,
			models.StatusReady, models.StatusFailed}, to, "")
	require.NoError(t, err)
}

func TestReprocess_FailedDocumentGoesBackToPending(t *testing.T) {
	uc, store, _, jobs, doc := manageFixture(t)
	setStatus(t, store, doc, models.StatusFailed)

	require.NoError(t, uc.Reprocess(context.Background(), doc.WorkspaceID, doc.ID, testActor()))

	stored, _ := store.GetDocument(context.Background(), doc.WorkspaceID, doc.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, []string{doc.ID.String()}, jobs.enqueued)
}

func TestReprocess_ProcessingDocumentIsConflict(t *testing.T) {
	uc, store, _, jobs, doc := manageFixture(t)
	setStatus(t, store, doc, models.StatusProcessing)

	err := uc.Reprocess(context.Background(), doc.WorkspaceID, doc.ID, testActor())
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	assert.Empty(t, jobs.enqueued)
}

func TestReprocess_EnqueueFailureLeavesDocumentFailed(t *testing.T) {
	uc, store, _, jobs, doc := manageFixture(t)
	setStatus(t, store, doc, models.StatusReady)
	jobs.err = assert.AnError

	err := uc.Reprocess(context.Background(), doc.WorkspaceID, doc.ID, testActor())
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))

	stored, _ := store.GetDocument(context.Background(), doc.WorkspaceID, doc.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestCancel_OnlyProcessingCanBeCancelled(t *testing.T) {
	uc, store, _, _, doc := manageFixture(t)

	err := uc.Cancel(context.Background(), doc.WorkspaceID, doc.ID, testActor(), "stuck")
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	setStatus(t, store, doc, models.StatusProcessing)
	require.NoError(t, uc.Cancel(context.Background(), doc.WorkspaceID, doc.ID, testActor(), "stuck worker"))

	stored, _ := store.GetDocument(context.Background(), doc.WorkspaceID, doc.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "stuck worker")
}

func TestDelete_SoftDeletesAndRemovesBlob(t *testing.T) {
	uc, store, blobs, _, doc := manageFixture(t)

	require.NoError(t, uc.Delete(context.Background(), doc.WorkspaceID, doc.ID, testActor()))

	stored, _ := store.GetDocument(context.Background(), doc.WorkspaceID, doc.ID)
	assert.Nil(t, stored)
	assert.NotContains(t, blobs.blobs, doc.StorageKey)
}

func TestDelete_MissingDocumentIsNotFound(t *testing.T) {
	uc, _, _, _, doc := manageFixture(t)
	other := *doc
	other.ID = doc.WorkspaceID // any id with no document

	err := uc.Delete(context.Background(), doc.WorkspaceID, other.ID, testActor())
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}
