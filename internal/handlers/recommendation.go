package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/services"
	"github.com/mediabud/recsys/pkg/models"
)

const defaultCount = 10

type RecommendationHandler struct {
	logger          *logrus.Logger
	recommendations services.RecommendationReader
}

type countQuery struct {
	Count int `form:"count,default=10" binding:"omitempty,min=1,max=100"`
}

func NewRecommendationHandler(logger *logrus.Logger, recommendations services.RecommendationReader) *RecommendationHandler {
	return &RecommendationHandler{
		logger:          logger,
		recommendations: recommendations,
	}
}

// GetRecommendations handles GET /api/v1/recommendations/:contentType/:userId
func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	contentType, n, ok := h.parseCommon(c)
	if !ok {
		return
	}
	userID := c.Param("userId")

	items, err := h.recommendations.GetRecommendations(c.Request.Context(), userID, contentType, n)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:      userID,
		ContentType: contentType,
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	})
}

// GetSimilarItems handles GET /api/v1/similar/:contentType/:itemId
func (h *RecommendationHandler) GetSimilarItems(c *gin.Context) {
	contentType, n, ok := h.parseCommon(c)
	if !ok {
		return
	}
	itemID := c.Param("itemId")

	items, err := h.recommendations.GetSimilarItems(c.Request.Context(), itemID, contentType, n)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SimilarItemsResponse{
		ItemID:      itemID,
		ContentType: contentType,
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	})
}

// GetPopularItems handles GET /api/v1/popular/:contentType
func (h *RecommendationHandler) GetPopularItems(c *gin.Context) {
	contentType, n, ok := h.parseCommon(c)
	if !ok {
		return
	}

	items, err := h.recommendations.GetPopularItems(c.Request.Context(), contentType, n)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content_type": contentType,
		"items":        items,
		"generated_at": time.Now().UTC(),
	})
}

func (h *RecommendationHandler) parseCommon(c *gin.Context) (models.ContentType, int, bool) {
	contentType, err := models.ParseContentType(c.Param("contentType"))
	if err != nil {
		h.writeError(c, err)
		return "", 0, false
	}

	var query countQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_COUNT",
				"message": "count must be between 1 and 100",
			},
		})
		return "", 0, false
	}
	n := query.Count
	if n == 0 {
		n = defaultCount
	}
	return contentType, n, true
}

func (h *RecommendationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidContentType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_CONTENT_TYPE",
				"message": "content type must be one of: movie, manga, anime",
			},
		})
	case errors.Is(err, models.ErrInvalidCount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_COUNT",
				"message": "count must be positive",
			},
		})
	default:
		h.logger.WithError(err).Error("Recommendation request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to generate recommendations",
			},
		})
	}
}
