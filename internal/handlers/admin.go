package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/services"
	"github.com/mediabud/recsys/pkg/models"
)

type AdminHandler struct {
	logger  *logrus.Logger
	trainer *services.ModelTrainer
}

func NewAdminHandler(logger *logrus.Logger, trainer *services.ModelTrainer) *AdminHandler {
	return &AdminHandler{
		logger:  logger,
		trainer: trainer,
	}
}

// TrainAll handles POST /api/v1/admin/train
func (h *AdminHandler) TrainAll(c *gin.Context) {
	results := h.trainer.TrainAll(c.Request.Context())
	c.JSON(http.StatusOK, models.TrainResponse{
		Results:     results,
		CompletedAt: time.Now().UTC(),
	})
}

// Train handles POST /api/v1/admin/train/:contentType
func (h *AdminHandler) Train(c *gin.Context) {
	contentType, err := models.ParseContentType(c.Param("contentType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_CONTENT_TYPE",
				"message": "content type must be one of: movie, manga, anime",
			},
		})
		return
	}

	ok := h.trainer.Train(c.Request.Context(), contentType)
	c.JSON(http.StatusOK, models.TrainResponse{
		Results:     map[models.ContentType]bool{contentType: ok},
		CompletedAt: time.Now().UTC(),
	})
}
