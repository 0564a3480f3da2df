package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"metabolitics-api/models"
	"metabolitics-api/services"
)

const userKey = "user"

// appServices bündelt alles, was die Handler brauchen.
type appServices struct {
	Dispatcher  *services.Dispatcher
	Ranker      *services.SimilarityRanker
	Predictor   *services.DiseasePredictor
	Catalog     *services.Catalog
	PublicOwner services.PublicOwner
}

// apiKeyAuthMiddleware löst X-API-KEY zu einem Benutzer auf. Ohne Header bleibt die Anfrage anonym.
func apiKeyAuthMiddleware(db *gorm.DB, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey == "" {
			c.Next()
			return
		}
		var user models.User
		if err := db.WithContext(c.Request.Context()).Where("api_key = ?", apiKey).First(&user).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Error("API key lookup failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Set(userKey, &user)
		c.Next()
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: API Key required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func analysisID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return 0, false
	}
	return uint(id), true
}

// writeServiceError übersetzt Service-Fehler in HTTP-Statuscodes.
func writeServiceError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotAuthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrResultsPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDiseaseNotFound), errors.Is(err, services.ErrEmailRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func setupAnalysisRoutes(router *gin.Engine, svc *appServices, log *zap.Logger) {
	rg := router.Group("/analysis")

	submit := func(method models.Method, public bool) gin.HandlerFunc {
		return func(c *gin.Context) {
			var sub services.Submission
			if err := c.ShouldBindJSON(&sub); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var owner services.OwnerResolver = svc.PublicOwner
			if !public {
				owner = services.AuthenticatedOwner{User: currentUser(c)}
			}
			res, err := svc.Dispatcher.Submit(c.Request.Context(), &sub, services.PipelineFor(method, public, owner))
			if err != nil {
				writeServiceError(c, log, err)
				return
			}
			if res.Status == services.StatusMappingError {
				c.JSON(http.StatusOK, gin.H{"id": string(services.StatusMappingError)})
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": res.AnalysisID, "study_id": res.StudyID})
		}
	}
	for _, m := range models.Methods {
		rg.POST("/"+m.Slug(), requireUser(), submit(m, false))
		rg.POST("/"+m.Slug()+"/public", submit(m, true))
	}

	rg.GET("/most-similar-diseases/:id", func(c *gin.Context) {
		id, ok := analysisID(c)
		if !ok {
			return
		}
		ranking, err := svc.Ranker.MostSimilarDiseases(c.Request.Context(), id, currentUser(c))
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, ranking)
	})

	rg.GET("/disease-prediction/:id", func(c *gin.Context) {
		id, ok := analysisID(c)
		if !ok {
			return
		}
		preds, err := svc.Predictor.PredictAnalysis(c.Request.Context(), id, currentUser(c))
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, preds)
	})

	rg.GET("/detail/:id", func(c *gin.Context) {
		id, ok := analysisID(c)
		if !ok {
			return
		}
		detail, err := svc.Catalog.Detail(c.Request.Context(), id, currentUser(c))
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	})

	rg.GET("/list", requireUser(), func(c *gin.Context) {
		studies, err := svc.Catalog.UserStudies(c.Request.Context(), currentUser(c))
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(studies))
	})

	rg.GET("/public", func(c *gin.Context) {
		studies, err := svc.Catalog.PublicStudies(c.Request.Context())
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(studies))
	})

	rg.POST("/search-by-metabol", func(c *gin.Context) {
		var req struct {
			Metabol string `json:"metabol" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		hits, err := svc.Catalog.SearchByMetabolite(c.Request.Context(), req.Metabol, currentUser(c))
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, hits)
	})
}

func setupDiseaseRoutes(router *gin.Engine, svc *appServices, log *zap.Logger) {
	router.GET("/diseases/all", func(c *gin.Context) {
		diseases, err := svc.Catalog.Diseases(c.Request.Context())
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(diseases))
	})
}

func setupDeleteRoutes(router *gin.Engine, svc *appServices, log *zap.Logger) {
	rg := router.Group("/delete", requireUser())
	rg.POST("/delete_analysis", func(c *gin.Context) {
		var req struct {
			AnalysisIDs []uint `json:"analysis_ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		n, err := svc.Catalog.DeleteAnalyses(c.Request.Context(), req.AnalysisIDs, currentUser(c))
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No matching analyses found"})
			return
		}
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Selected analyses deleted successfully.", "deleted": n})
	})
}

func setupModelRoutes(router *gin.Engine, svc *appServices, log *zap.Logger) {
	rg := router.Group("/models")
	rg.GET("/scores", func(c *gin.Context) {
		scores, err := svc.Predictor.Scores()
		if err != nil {
			writeServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, scores)
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
