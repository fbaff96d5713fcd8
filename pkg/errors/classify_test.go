package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ClassTransient, ClassifyStatus(408))
	assert.Equal(t, ClassTransient, ClassifyStatus(429))
	assert.Equal(t, ClassTransient, ClassifyStatus(500))
	assert.Equal(t, ClassTransient, ClassifyStatus(503))
	assert.Equal(t, ClassUnknown, ClassifyStatus(501))
	assert.Equal(t, ClassPermanent, ClassifyStatus(400))
	assert.Equal(t, ClassPermanent, ClassifyStatus(401))
	assert.Equal(t, ClassPermanent, ClassifyStatus(403))
	assert.Equal(t, ClassPermanent, ClassifyStatus(404))
	assert.Equal(t, ClassUnknown, ClassifyStatus(302))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTransient, Classify(errors.New("connection refused")))
	assert.Equal(t, ClassTransient, Classify(errors.New("upstream rate limit exceeded")))
	assert.Equal(t, ClassTransient, Classify(errors.New("please slow down")))
	assert.Equal(t, ClassPermanent, Classify(errors.New("invalid model id")))
	assert.Equal(t, ClassPermanent, Classify(context.Canceled))
	assert.Equal(t, ClassPermanent, Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
}

func TestErrorEnvelope(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, CodeStorage, "upload failed")
	assert.Equal(t, CodeStorage, CodeOf(err))
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("use case: %w", err)
	assert.Equal(t, CodeStorage, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeStorage))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	traced := Validation("empty query").WithTraceID("t-1")
	assert.Contains(t, traced.Error(), "VALIDATION")
	assert.Contains(t, traced.Error(), "t-1")
}
