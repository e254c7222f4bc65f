package services

import (
	"imagevariants/config"
	"imagevariants/internal/database"
	"imagevariants/internal/events"
	"imagevariants/internal/repositories"
	"imagevariants/internal/storage"
	"imagevariants/pkg/logger"
)

type Service struct {
	Transaction *TransactionService
	Scheduler   *SchedulerService
	Family      *FamilyService
	Activity    *ActivityService
	Derivation  *DerivationService
	Deletion    *DeletionService
	Upload      *UploadService
	Attachment  *AttachmentService
	OrphanSweep *OrphanSweepService
}

// New wires the image services. eventBus and queue may be nil.
func New(
	db database.DB,
	config config.Config,
	repos repositories.Repository,
	store storage.Storage,
	eventBus *events.EventBus,
	queue DerivationEnqueuer,
) (Service, error) {
	log := logger.New("services").Function("New")

	locker, err := newLocker(db, config)
	if err != nil {
		return Service{}, err
	}

	var familyCache FamilyCache
	if db.Cache.Family != nil {
		familyCache = database.NewFamilyCache(db.Cache.Family, config.FamilyCacheTTL())
	}

	var publisher EventPublisher
	if eventBus != nil {
		publisher = eventBus
	}

	transactionService := NewTransactionService(db)
	familyService := NewFamilyService(repos.Image, familyCache)
	activityService := NewActivityService(repos.Activity, familyService)
	metadataService := NewMetadataService()

	derivationService := NewDerivationService(DerivationDeps{
		Images:      repos.Image,
		Family:      familyService,
		Activity:    activityService,
		Storage:     store,
		Resizer:     NewResizeService(VariantJPEGQuality),
		Metadata:    metadataService,
		Locker:      locker,
		Transaction: transactionService,
		Events:      publisher,
	}, config.DerivationConcurrency, config.StorageTimeout())

	deletionService := NewDeletionService(DeletionDeps{
		Images:      repos.Image,
		Attachments: repos.Attachment,
		Family:      familyService,
		Activity:    activityService,
		Storage:     store,
		Transaction: transactionService,
		Events:      publisher,
	}, config.StorageTimeout())

	uploadService := NewUploadService(
		repos.Image,
		metadataService,
		activityService,
		store,
		config.StorageTimeout(),
		publisher,
		queue,
	)

	log.Info("Services initialized",
		"lockBackend", config.LockBackend,
		"familyCache", familyCache != nil,
		"derivationConcurrency", config.DerivationConcurrency,
		"queue", queue != nil,
	)

	return Service{
		Transaction: transactionService,
		Scheduler:   NewSchedulerService(),
		Family:      familyService,
		Activity:    activityService,
		Derivation:  derivationService,
		Deletion:    deletionService,
		Upload:      uploadService,
		Attachment:  NewAttachmentService(repos.Image, repos.Attachment, activityService),
		OrphanSweep: NewOrphanSweepService(repos.Image, deletionService),
	}, nil
}

func newLocker(db database.DB, config config.Config) (Locker, error) {
	if config.LockBackend != "valkey" {
		return NewKeyedMutex(), nil
	}
	if db.Cache.Lock == nil {
		return nil, logger.New("services").Function("newLocker").
			ErrMsg("LOCK_BACKEND is valkey but no cache is configured")
	}
	return database.NewValkeyLocker(db.Cache.Lock, config.LockTTL()), nil
}
