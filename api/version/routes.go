package version

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/dataset-importer/api/types"
)

// RegisterRoutes registers version routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies) {
	v := "dev"
	if deps != nil && deps.Version != "" {
		v = deps.Version
	}
	engine.GET("/", Get(v))
}
