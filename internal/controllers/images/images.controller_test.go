package imagesController

import (
	"context"
	"errors"
	"testing"

	"imagevariants/internal/services"
	"imagevariants/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	requests []types.DerivationRequest
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, request types.DerivationRequest) error {
	if q.err != nil {
		return q.err
	}
	q.requests = append(q.requests, request)
	return nil
}

func TestEnqueueDerivation(t *testing.T) {
	queue := &recordingQueue{}
	controller := New(services.Service{}, queue)

	resp, err := controller.EnqueueDerivation(context.Background(), 7, &DeriveVariantsRequest{
		Types: []string{"Thumb", "large", "thumb"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Queued)
	assert.Equal(t, []string{"thumb", "large"}, resp.Types)
	require.Len(t, queue.requests, 1)
	assert.Equal(t, types.DerivationRequest{ImageID: 7, Types: []string{"thumb", "large"}}, queue.requests[0])
}

func TestEnqueueDerivation_DefaultTypes(t *testing.T) {
	queue := &recordingQueue{}
	controller := New(services.Service{}, queue)

	resp, err := controller.EnqueueDerivation(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, services.DefaultVariantTypes, resp.Types)
}

func TestEnqueueDerivation_Rejects(t *testing.T) {
	ctx := context.Background()

	_, err := New(services.Service{}, nil).EnqueueDerivation(ctx, 7, nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	queue := &recordingQueue{}
	controller := New(services.Service{}, queue)

	_, err = controller.EnqueueDerivation(ctx, 0, nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = controller.EnqueueDerivation(ctx, 7, &DeriveVariantsRequest{Types: []string{"huge"}})
	assert.ErrorIs(t, err, types.ErrInvalidVariantType)
	assert.Empty(t, queue.requests)

	queue.err = errors.New("broker down")
	_, err = controller.EnqueueDerivation(ctx, 7, nil)
	assert.Error(t, err)
}

func TestImagesController_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	controller := New(services.Service{}, nil)

	_, err := controller.Upload(ctx, types.UploadRequest{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = controller.DeriveVariants(ctx, -1, nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = controller.BulkDeleteImages(ctx, &BulkDeleteRequest{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = controller.Attach(ctx, 1, nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.ErrorIs(t, controller.DeleteImage(ctx, 0), types.ErrValidation)
	assert.ErrorIs(t, controller.Detach(ctx, 0, &types.AttachRequest{}), types.ErrValidation)
}
