package apidoc

import (
	_ "embed"
	"sync"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

//go:embed swagger.json
var swaggerJSON string

type doc struct{}

func (doc) ReadDoc() string { return swaggerJSON }

var once sync.Once

// Register publishes the OpenAPI document under swag.Name. Safe to call more than once.
func Register() {
	once.Do(func() { swag.Register(swag.Name, doc{}) })
}

// RegisterRoutes serves Swagger UI at /swagger/index.html.
func RegisterRoutes(r gin.IRoutes) {
	Register()
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
