package services

import (
	"context"
	"testing"

	"imagevariants/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrphanSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedOriginal(t, 1, 800, 600, 800, 600)
	kept := h.seedVariant(1, models.SizeClassThumb, false)
	orphan := h.seedVariant(8, models.SizeClassThumb, false)
	legacyOrphan := h.seedVariant(9, models.SizeClassSmall, true)

	report, err := h.sweep.Sweep(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Found)
	assert.Empty(t, report.Deleted)
	assert.True(t, h.images.exists(orphan.ID))

	report, err = h.sweep.Sweep(ctx, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{orphan.ID, legacyOrphan.ID}, report.Deleted)
	assert.False(t, h.images.exists(orphan.ID))
	assert.False(t, h.storage.has(legacyOrphan.Filename))
	assert.True(t, h.images.exists(kept.ID))
}

func TestOrphanSweep_ReportsDeleteFailures(t *testing.T) {
	h := newHarness(t)
	orphan := h.seedVariant(8, models.SizeClassThumb, false)
	h.storage.deleteErr[orphan.Filename] = errBoom

	report, err := h.sweep.Sweep(context.Background(), true)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, report.Found)
	assert.Empty(t, report.Deleted)
	assert.True(t, h.images.exists(orphan.ID))
}
