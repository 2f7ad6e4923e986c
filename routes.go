package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"content-hand/app"
	"content-hand/middleware"
	"content-hand/models"
	"content-hand/services"
	"content-hand/storage"
)

func newRouter(a *app.App) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Use(apiKeyAuthMiddleware(a.Config))

	setupPipelineRoutes(router, a.Content, a.Logger)
	setupPipelineConfigRoutes(router, a.Content, a.Logger)
	setupContentRoutes(router, a.Content, a.Publish, a.Logger)
	setupValidationRoutes(router, a.Validator, a.Gate)
	setupLinkRoutes(router, a.Links)
	setupWorkflowRoutes(router, a.Escalation, a.Scheduler, a.Publish, a.Logger)
	return router
}

// respondError bildet Service-Fehler auf HTTP-Status ab.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var verrs validation.Errors
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
	case errors.Is(err, storage.ErrStatusConflict), errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &verrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verrs})
	default:
		middleware.Logger(c, log).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func setupPipelineRoutes(router *gin.Engine, content *services.ContentService, log *zap.Logger) {
	router.POST("/pipeline/execute", func(c *gin.Context) {
		var req struct {
			OwnerID string            `json:"owner_id"`
			Topic   models.TopicInput `json:"topic"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		out, err := content.Generate(c.Request.Context(), req.OwnerID, req.Topic)
		switch {
		case errors.Is(err, services.ErrNoGenerator):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "metadata": out.Metadata})
		case errors.Is(err, services.ErrEmptyDraft):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "metadata": out.Metadata})
		case err != nil:
			respondError(c, log, err)
		default:
			c.JSON(http.StatusCreated, out)
		}
	})
}

func setupPipelineConfigRoutes(router *gin.Engine, content *services.ContentService, log *zap.Logger) {
	rg := router.Group("/pipeline-configs")

	rg.GET("/:owner", func(c *gin.Context) {
		owner := c.Param("owner")
		settings, cfg, err := content.Settings(c.Request.Context(), owner)
		if err != nil {
			respondError(c, log, err)
			return
		}
		if cfg == nil {
			c.JSON(http.StatusOK, gin.H{"owner_id": owner, "settings": settings, "default": true})
			return
		}
		c.JSON(http.StatusOK, cfg)
	})

	rg.PUT("/:owner", func(c *gin.Context) {
		var req struct {
			Name     string                  `json:"name"`
			Settings models.PipelineSettings `json:"settings"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		cfg, err := content.SaveSettings(c.Request.Context(), c.Param("owner"), req.Name, req.Settings)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	})
}

func setupContentRoutes(router *gin.Engine, content *services.ContentService, publish *services.PublishService, log *zap.Logger) {
	rg := router.Group("/content")

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		item, err := content.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	rg.POST("/query", func(c *gin.Context) {
		var req struct {
			OwnerID  string                 `json:"owner_id"`
			Statuses []models.ContentStatus `json:"statuses"`
			OrderBy  string                 `json:"order_by"`
			Limit    int                    `json:"limit"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		for _, s := range req.Statuses {
			if !s.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(s)})
				return
			}
		}
		items, err := content.List(c.Request.Context(), models.ContentFilter{
			OwnerID:  req.OwnerID,
			Statuses: req.Statuses,
			OrderBy:  req.OrderBy,
			Limit:    req.Limit,
		})
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	rg.PATCH("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var edit services.ContentEdit
		if err := c.ShouldBindJSON(&edit); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		item, err := content.Edit(c.Request.Context(), id, edit)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		item, err := content.Delete(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		log.Info("Content deleted", zap.Uint("content_id", id))
		c.JSON(http.StatusOK, item)
	})

	rg.POST("/:id/submit", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		item, res, err := content.Submit(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "validation": res})
	})

	rg.POST("/:id/approve", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Reviewer string `json:"reviewer"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Reviewer == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer is required"})
			return
		}
		item, res, err := content.Approve(c.Request.Context(), id, req.Reviewer)
		if errors.Is(err, services.ErrGateFailed) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "validation": res})
			return
		}
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "validation": res})
	})

	rg.POST("/:id/publish", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		published, err := publish.Publish(c.Request.Context(), id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrStatusConflict) && !errors.Is(err, services.ErrInvalidTransition) {
			middleware.Logger(c, log).Warn("Publish failed", zap.Uint("content_id", id), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"published": false, "error": err.Error()})
			return
		}
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"published": published})
	})
}

func setupValidationRoutes(router *gin.Engine, validator *services.StructuralValidator, gate *services.PublishGate) {
	rg := router.Group("/validate")

	rg.POST("/structural", func(c *gin.Context) {
		var in services.ValidationInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		c.JSON(http.StatusOK, validator.Validate(in))
	})

	rg.POST("/publish-gate", func(c *gin.Context) {
		var in services.ValidationInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		c.JSON(http.StatusOK, gate.Check(in))
	})
}

func setupLinkRoutes(router *gin.Engine, links *services.LinkTransformer) {
	router.POST("/links/transform", func(c *gin.Context) {
		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
			return
		}
		c.JSON(http.StatusOK, links.Transform(req.Body))
	})
}

func setupWorkflowRoutes(router *gin.Engine, esc *services.EscalationService, sched *services.SchedulerService, publish *services.PublishService, log *zap.Logger) {
	router.POST("/sla/escalate", func(c *gin.Context) {
		var opts services.EscalationOptions
		if err := c.ShouldBindJSON(&opts); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		summary, err := esc.Run(c.Request.Context(), opts)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.POST("/schedule/run", func(c *gin.Context) {
		var opts services.ScheduleOptions
		if err := c.ShouldBindJSON(&opts); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		summary, err := sched.Run(c.Request.Context(), opts)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.POST("/publish/due", func(c *gin.Context) {
		summary, err := publish.PublishDue(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
