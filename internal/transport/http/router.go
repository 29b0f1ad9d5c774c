package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/vmaximov/sellhub/internal/auth"
	"github.com/vmaximov/sellhub/internal/handlers"
	authmw "github.com/vmaximov/sellhub/internal/middleware/auth"
)

type Deps struct {
	DB             *gorm.DB
	AuthManager    *auth.Manager
	AuthHandler    *handlers.AuthHandler
	ListingHandler *handlers.ListingHandler
	ProfileHandler *handlers.ProfileHandler
	SearchHandler  *handlers.SearchHandler

	// UploadDir is served statically when the disk storage backend is used.
	UploadDir string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	if d.UploadDir != "" {
		e.Static("/uploads", d.UploadDir)
	}

	e.GET("/auth/google", d.AuthHandler.GoogleLogin)
	e.GET("/auth/google/callback", d.AuthHandler.GoogleCallback)

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)

	v1.GET("/listings", d.ListingHandler.GetListings)
	v1.GET("/listings/:id", d.ListingHandler.GetListing)

	if d.SearchHandler != nil {
		v1.GET("/search", d.SearchHandler.Search)
	}

	protected := v1.Group("", authmw.RequireLogin(d.AuthManager))

	protected.POST("/listings", d.ListingHandler.CreateListing)
	protected.PATCH("/listings/:id", d.ListingHandler.PatchListing)
	protected.DELETE("/listings/:id", d.ListingHandler.DeleteListing)

	protected.GET("/my/listings", d.ListingHandler.MyListings)

	protected.GET("/profile", d.ProfileHandler.GetProfile)
	protected.PATCH("/profile", d.ProfileHandler.UpdateProfile)
}
