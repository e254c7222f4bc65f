package controllers

import (
	"imagevariants/internal/services"

	adminController "imagevariants/internal/controllers/admin"
	imagesController "imagevariants/internal/controllers/images"
)

type Controllers struct {
	Images imagesController.ImagesControllerInterface
	Admin  adminController.AdminControllerInterface
}

func New(svc services.Service, queue services.DerivationEnqueuer) Controllers {
	return Controllers{
		Images: imagesController.New(svc, queue),
		Admin:  adminController.New(svc.Scheduler, svc.OrphanSweep),
	}
}
