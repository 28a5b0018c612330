package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/services"
)

type Handlers struct {
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
	Health         *HealthHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Recommendation: NewRecommendationHandler(logger, services.Recommendations),
		Admin:          NewAdminHandler(logger, services.Trainer),
		Health:         NewHealthHandler(),
	}
}
