package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sort"
	"sync"
	"testing"
	"time"

	"imagevariants/internal/events"
	"imagevariants/internal/models"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"

	"github.com/disintegration/imaging"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fakeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func cloneImage(image *models.Image) *models.Image {
	c := *image
	c.Tags = pq.StringArray(append([]string(nil), image.Tags...))
	if image.ParentImageID != nil {
		id := *image.ParentImageID
		c.ParentImageID = &id
	}
	if image.SizeClass != nil {
		sc := *image.SizeClass
		c.SizeClass = &sc
	}
	return &c
}

// fakeImageRepo enforces the same unique keys as the images table.
type fakeImageRepo struct {
	mu        sync.Mutex
	images    map[int]*models.Image
	nextID    int
	createErr error
	deleteErr map[int]error
	creates   int

	// afterFindVariants runs once, after the next FindVariants has read.
	afterFindVariants func()
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{images: map[int]*models.Image{}, deleteErr: map[int]error{}, nextID: 1}
}

func (r *fakeImageRepo) snapshot() map[int]*models.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[int]*models.Image, len(r.images))
	for id, image := range r.images {
		snap[id] = cloneImage(image)
	}
	return snap
}

func (r *fakeImageRepo) restore(snap map[int]*models.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = snap
}

func (r *fakeImageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images)
}

func (r *fakeImageRepo) exists(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.images[id]
	return ok
}

// seed stores image as-is, assigning an id and creation time when missing.
func (r *fakeImageRepo) seed(image *models.Image) *models.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	if image.ID == 0 {
		image.ID = r.nextID
	}
	if image.ID >= r.nextID {
		r.nextID = image.ID + 1
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = fakeEpoch.Add(time.Duration(image.ID) * time.Second)
	}
	r.images[image.ID] = cloneImage(image)
	return image
}

func (r *fakeImageRepo) GetByID(ctx context.Context, id int) (*models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	image, ok := r.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: image %d", types.ErrNotFound, id)
	}
	return cloneImage(image), nil
}

func (r *fakeImageRepo) GetByIDs(ctx context.Context, ids []int) ([]*models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*models.Image
	for _, id := range ids {
		if image, ok := r.images[id]; ok {
			found = append(found, cloneImage(image))
		}
	}
	return found, nil
}

func (r *fakeImageRepo) Create(ctx context.Context, image *models.Image) (*models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}
	if image.Filename == "" || image.URL == "" {
		return nil, types.ErrValidation
	}
	for _, existing := range r.images {
		if existing.Filename == image.Filename {
			return nil, fmt.Errorf("%w: filename %s", types.ErrConflict, image.Filename)
		}
		if image.ParentImageID != nil && image.SizeClass != nil &&
			existing.ParentImageID != nil && existing.SizeClass != nil &&
			*existing.ParentImageID == *image.ParentImageID && *existing.SizeClass == *image.SizeClass {
			return nil, fmt.Errorf("%w: parent %d size %s", types.ErrConflict, *image.ParentImageID, *image.SizeClass)
		}
	}

	r.creates++
	image.ID = r.nextID
	r.nextID++
	image.CreatedAt = fakeEpoch.Add(time.Duration(image.ID) * time.Second)
	image.UpdatedAt = image.CreatedAt
	r.images[image.ID] = cloneImage(image)
	return image, nil
}

func (r *fakeImageRepo) Update(ctx context.Context, image *models.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[image.ID]; !ok {
		return types.ErrNotFound
	}
	r.images[image.ID] = cloneImage(image)
	return nil
}

func (r *fakeImageRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := r.images[id]; !ok {
		return fmt.Errorf("%w: image %d", types.ErrNotFound, id)
	}
	delete(r.images, id)
	return nil
}

func (r *fakeImageRepo) FindByFolderAndTags(ctx context.Context, folder string, tags []string) ([]*models.Image, error) {
	return r.filter(func(image *models.Image) bool {
		if image.Folder != folder {
			return false
		}
		for _, tag := range tags {
			if !image.HasTag(tag) {
				return false
			}
		}
		return true
	}), nil
}

func (r *fakeImageRepo) FindVariants(ctx context.Context, originalID int) ([]*models.Image, error) {
	variants := r.filter(func(image *models.Image) bool {
		return image.Folder == models.FolderVariants &&
			((image.ParentImageID != nil && *image.ParentImageID == originalID) ||
				image.HasTag(models.FamilyTag(originalID)))
	})

	r.mu.Lock()
	hook := r.afterFindVariants
	r.afterFindVariants = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	return variants, nil
}

func (r *fakeImageRepo) FindVariant(ctx context.Context, originalID int, sizeClass string) (*models.Image, error) {
	matches := r.filter(func(image *models.Image) bool {
		if image.Folder != models.FolderVariants {
			return false
		}
		if image.ParentImageID != nil {
			return *image.ParentImageID == originalID && image.SizeClass != nil && *image.SizeClass == sizeClass
		}
		return image.HasTag(models.FamilyTag(originalID)) && image.HasTag(sizeClass)
	})
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no %s variant for image %d", types.ErrNotFound, sizeClass, originalID)
	}
	return matches[0], nil
}

func (r *fakeImageRepo) FindOrphanVariants(ctx context.Context, limit int) ([]*models.Image, error) {
	r.mu.Lock()
	ids := make(map[int]bool, len(r.images))
	for id := range r.images {
		ids[id] = true
	}
	r.mu.Unlock()

	orphans := r.filter(func(image *models.Image) bool {
		if image.Folder != models.FolderVariants {
			return false
		}
		if image.ParentImageID != nil && ids[*image.ParentImageID] {
			return false
		}
		for id := range ids {
			if image.HasTag(models.FamilyTag(id)) {
				return false
			}
		}
		return true
	})
	if len(orphans) > limit {
		orphans = orphans[:limit]
	}
	return orphans, nil
}

func (r *fakeImageRepo) filter(keep func(*models.Image) bool) []*models.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Image
	for _, image := range r.images {
		if keep(image) {
			out = append(out, cloneImage(image))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type fakeAttachmentRepo struct {
	mu          sync.Mutex
	attachments []*models.ImageAttachment
	detachErr   error
}

func (r *fakeAttachmentRepo) snapshot() []*models.ImageAttachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ImageAttachment, len(r.attachments))
	for i, a := range r.attachments {
		c := *a
		out[i] = &c
	}
	return out
}

func (r *fakeAttachmentRepo) restore(snap []*models.ImageAttachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments = snap
}

func (r *fakeAttachmentRepo) countFor(imageID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attachments {
		if a.ImageID == imageID {
			n++
		}
	}
	return n
}

func (r *fakeAttachmentRepo) Attach(ctx context.Context, attachment *models.ImageAttachment) (*models.ImageAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attachments {
		if a.ImageID == attachment.ImageID && a.AttachableType == attachment.AttachableType &&
			a.AttachableID == attachment.AttachableID {
			return nil, types.ErrConflict
		}
	}
	attachment.ID = len(r.attachments) + 1
	c := *attachment
	r.attachments = append(r.attachments, &c)
	return attachment, nil
}

func (r *fakeAttachmentRepo) Detach(ctx context.Context, imageID int, attachableType string, attachableID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.ImageAttachment
	var removed int64
	for _, a := range r.attachments {
		if a.ImageID == imageID && a.AttachableType == attachableType && a.AttachableID == attachableID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.attachments = kept
	return removed, nil
}

func (r *fakeAttachmentRepo) DetachAll(ctx context.Context, imageID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detachErr != nil {
		return 0, r.detachErr
	}
	var kept []*models.ImageAttachment
	var removed int64
	for _, a := range r.attachments {
		if a.ImageID == imageID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.attachments = kept
	return removed, nil
}

func (r *fakeAttachmentRepo) ListByImage(ctx context.Context, imageID int) ([]*models.ImageAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ImageAttachment
	for _, a := range r.attachments {
		if a.ImageID == imageID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	records []*models.ActivityRecord
	err     error
}

func (r *fakeActivityRepo) Record(ctx context.Context, activity *models.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	activity.ID = len(r.records) + 1
	activity.CreatedAt = fakeEpoch.Add(time.Duration(activity.ID) * time.Minute)
	r.records = append(r.records, activity)
	return nil
}

func (r *fakeActivityRepo) ListByImageIDs(ctx context.Context, imageIDs []int, limit int) ([]*models.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[int]bool, len(imageIDs))
	for _, id := range imageIDs {
		wanted[id] = true
	}
	var out []*models.ActivityRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if wanted[r.records[i].ImageID] {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *fakeActivityRepo) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, record := range r.records {
		out = append(out, record.Event)
	}
	return out
}

type txMarker struct{}

// fakeTransactor restores the record store and attachments when fn fails.
type fakeTransactor struct {
	images      *fakeImageRepo
	attachments *fakeAttachmentRepo
	rollbacks   int
}

func (t *fakeTransactor) Execute(ctx context.Context, fn func(context.Context, *gorm.DB) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx, nil)
	}

	images := t.images.snapshot()
	var attachments []*models.ImageAttachment
	if t.attachments != nil {
		attachments = t.attachments.snapshot()
	}

	if err := fn(context.WithValue(ctx, txMarker{}, true), nil); err != nil {
		t.images.restore(images)
		if t.attachments != nil {
			t.attachments.restore(attachments)
		}
		t.rollbacks++
		return err
	}
	return nil
}

// memStorage is an in-memory storage.Storage with failure injection.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	gets      int
	puts      int
	getErr    error
	putErr    error
	deleteErr map[string]error
	getDelay  time.Duration
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

var _ storage.Storage = (*memStorage)(nil)

func (s *memStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.gets++
	delay, getErr := s.getDelay, s.getErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.puts++
	s.objects[key] = append([]byte(nil), data...)
	return s.URL(key), nil
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	if _, ok := s.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *memStorage) Size(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return 0, storage.ErrObjectNotFound
	}
	return int64(len(data)), nil
}

func (s *memStorage) URL(key string) string {
	return "/storage/images/" + key
}

func (s *memStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStorage) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *memStorage) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type publishedEvent struct {
	Type    events.MessageType
	ImageID int
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishImageEvent(eventType events.MessageType, imageID int, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, ImageID: imageID})
	return nil
}

func (p *fakePublisher) count(eventType events.MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fakeFamilyCache struct {
	mu          sync.Mutex
	views       map[int]*types.FamilyView
	generations map[int]int64
	invalidated []int
	rejected    int
}

func newFakeFamilyCache() *fakeFamilyCache {
	return &fakeFamilyCache{views: map[int]*types.FamilyView{}, generations: map[int]int64{}}
}

func (c *fakeFamilyCache) Get(ctx context.Context, originalID int) (*types.FamilyView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[originalID]
	return view, ok, nil
}

func (c *fakeFamilyCache) Generation(ctx context.Context, originalID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[originalID], nil
}

func (c *fakeFamilyCache) Set(
	ctx context.Context,
	originalID int,
	generation int64,
	view *types.FamilyView,
) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[originalID] != generation {
		c.rejected++
		return false, nil
	}
	c.views[originalID] = view
	return true, nil
}

func (c *fakeFamilyCache) Invalidate(ctx context.Context, originalID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[originalID]++
	delete(c.views, originalID)
	c.invalidated = append(c.invalidated, originalID)
	return nil
}

// harness wires every service over the fakes.
type harness struct {
	images      *fakeImageRepo
	attachments *fakeAttachmentRepo
	activity    *fakeActivityRepo
	storage     *memStorage
	tx          *fakeTransactor
	publisher   *fakePublisher
	cache       *fakeFamilyCache

	family     *FamilyService
	activities *ActivityService
	derivation *DerivationService
	deletion   *DeletionService
	upload     *UploadService
	attach     *AttachmentService
	sweep      *OrphanSweepService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		images:      newFakeImageRepo(),
		attachments: &fakeAttachmentRepo{},
		activity:    &fakeActivityRepo{},
		storage:     newMemStorage(),
		publisher:   &fakePublisher{},
		cache:       newFakeFamilyCache(),
	}
	h.tx = &fakeTransactor{images: h.images, attachments: h.attachments}

	h.family = NewFamilyService(h.images, h.cache)
	h.activities = NewActivityService(h.activity, h.family)
	h.derivation = NewDerivationService(DerivationDeps{
		Images:      h.images,
		Family:      h.family,
		Activity:    h.activities,
		Storage:     h.storage,
		Locker:      NewKeyedMutex(),
		Transaction: h.tx,
		Events:      h.publisher,
	}, 4, time.Second)
	h.deletion = NewDeletionService(DeletionDeps{
		Images:      h.images,
		Attachments: h.attachments,
		Family:      h.family,
		Activity:    h.activities,
		Storage:     h.storage,
		Transaction: h.tx,
		Events:      h.publisher,
	}, time.Second)
	h.upload = NewUploadService(h.images, nil, h.activities, h.storage, time.Second, h.publisher, nil)
	h.attach = NewAttachmentService(h.images, h.attachments, h.activities)
	h.sweep = NewOrphanSweepService(h.images, h.deletion)

	return h
}

// encodeImage returns a PNG of the given size.
func encodeImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

// seedOriginal stores a width x height PNG and its record. Recorded
// dimensions may differ from the real ones to exercise the unknown-size path.
func (h *harness) seedOriginal(t *testing.T, id, width, height int, recordedW, recordedH int) *models.Image {
	t.Helper()
	filename := fmt.Sprintf("photo-%d.png", id)
	data := encodeImage(t, width, height)
	_, err := h.storage.Put(context.Background(), filename, data, "image/png")
	require.NoError(t, err)

	return h.images.seed(&models.Image{
		BaseModel:        models.BaseModel{ID: id},
		Filename:         filename,
		OriginalFilename: fmt.Sprintf("Holiday %d.png", id),
		URL:              h.storage.URL(filename),
		Size:             int64(len(data)),
		Width:            recordedW,
		Height:           recordedH,
		MimeType:         "image/png",
		Folder:           "products",
		Tags:             pq.StringArray{"summer", "catalog"},
		Title:            fmt.Sprintf("Product shot %d", id),
		AltText:          "Red mug",
	})
}

func (h *harness) seedVariant(originalID int, sizeClass string, legacy bool) *models.Image {
	image := &models.Image{
		Filename: fmt.Sprintf("photo-%d-%s.png", originalID, sizeClass),
		URL:      h.storage.URL(fmt.Sprintf("photo-%d-%s.png", originalID, sizeClass)),
		Folder:   models.FolderVariants,
		Tags:     pq.StringArray{sizeClass, models.TagVariant, models.FamilyTag(originalID)},
	}
	if !legacy {
		parent := originalID
		sc := sizeClass
		image.ParentImageID = &parent
		image.SizeClass = &sc
	}
	h.storage.objects[image.Filename] = []byte("variant")
	return h.images.seed(image)
}

func ids(images []*models.Image) []int {
	out := make([]int, 0, len(images))
	for _, image := range images {
		out = append(out, image.ID)
	}
	return out
}

var errBoom = errors.New("boom")
