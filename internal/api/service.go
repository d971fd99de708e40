// Package api exposes the registry core over HTTP. Routes follow the
// conventional schema-registry surface: subjects, versions, schema ids,
// compatibility and config.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/schemahub/registry/internal/registry"
)

// Service provides the registry HTTP API.
type Service struct {
	registry *registry.Registry
}

// NewService creates a new registry API service.
func NewService(reg *registry.Registry) *Service {
	return &Service{registry: reg}
}

// RegisterRoutes registers the registry API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	handler := NewHandler(s.registry)

	subjects := r.Group("/subjects")
	{
		subjects.GET("", handler.HandleListSubjects)
		subjects.POST("/:subject", handler.HandleLookup)
		subjects.DELETE("/:subject", handler.HandleDeleteSubject)
		subjects.GET("/:subject/versions", handler.HandleListVersions)
		subjects.POST("/:subject/versions", handler.HandleRegister)
		subjects.GET("/:subject/versions/:version", handler.HandleGetVersion)
		subjects.DELETE("/:subject/versions/:version", handler.HandleDeleteVersion)
	}

	r.GET("/schemas/ids/:id", handler.HandleGetSchemaByID)

	r.POST("/compatibility/subjects/:subject/versions/:version", handler.HandleTestCompatibility)

	config := r.Group("/config")
	{
		config.GET("", handler.HandleGetGlobalConfig)
		config.PUT("", handler.HandleSetGlobalConfig)
		config.GET("/:subject", handler.HandleGetSubjectConfig)
		config.PUT("/:subject", handler.HandleSetSubjectConfig)
		config.DELETE("/:subject", handler.HandleClearSubjectConfig)
	}
}
