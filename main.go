package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kitabi/kitabibackend/config"
	"github.com/kitabi/kitabibackend/controllers"
	"github.com/kitabi/kitabibackend/database"
	"github.com/kitabi/kitabibackend/logger"
	"github.com/kitabi/kitabibackend/middleware"
	"github.com/kitabi/kitabibackend/models"
	"github.com/kitabi/kitabibackend/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	slogger := logger.New(cfg.Env)

	ctx := context.Background()
	if err := database.Connect(ctx, cfg.MongoURI, cfg.DatabaseName); err != nil {
		log.Fatal("mongodb connection failed: ", err)
	}
	defer func() { _ = database.Disconnect(ctx) }()

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := utils.SeedAdminUser(ctx, database.OpenCollection("users"), cfg); err != nil {
			log.Fatal(err)
		}
	} else {
		slogger.Warn("admin seed skipped, ADMIN_EMAIL or ADMIN_PASSWORD not set")
	}

	tm := utils.NewTokenMaker(cfg.JWTSecret, cfg.TokenTTL)
	uploader, err := utils.NewUploader(cfg, slogger)
	if err != nil {
		log.Fatal(err)
	}

	app := &controllers.App{Cfg: cfg, TM: tm, Uploader: uploader, Log: slogger}
	gateway := middleware.NewGateway(tm, cfg.Env, slogger)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadSize

	allowedOrigins := map[string]bool{}
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/auth/register", app.Register())
	r.POST("/auth/login", app.Login())
	r.POST("/auth/refresh", app.Refresh())

	r.GET("/books/:id", gateway.OptionalAuth(), app.GetBook())

	books := r.Group("/books")
	books.Use(gateway.RequireAuth())
	{
		books.POST("/:id/upload", app.UploadBookFile())
		books.GET("/:id/read/:format", app.ReadBook())
		books.GET("/:id/metadata/:format", app.GetBookMetadata())
		books.POST("/:id/progress", app.TrackProgress())
		books.POST("/:id/rating", app.RateBook())
		books.DELETE("/:id/files/:format", app.DeleteBookFile())
	}

	users := r.Group("/users")
	{
		users.POST("/me/password", gateway.RequireAuth(), app.ChangeMyPassword())
		users.GET("/:userId", gateway.OwnerOrAdmin("userId"), app.GetUser())
		users.PATCH("/:userId", gateway.OwnerOrAdmin("userId"), app.UpdateUser())
	}

	admin := r.Group("/admin")
	admin.Use(gateway.RequireAdmin())
	{
		admin.POST("/books", app.CreateBook())
		admin.POST("/books/:id/files", app.UploadBookFiles())
		admin.DELETE("/books/:id", app.DeleteBook())
		admin.POST("/users", app.CreateUser())
		admin.PATCH("/users/:userId/status", app.UpdateUserStatus())
	}

	moderation := r.Group("/moderation")
	moderation.Use(gateway.RequireRole(models.RoleModerator))
	{
		moderation.POST("/books/:id/files", app.UploadBookFiles())
		moderation.DELETE("/books/:id/files/:format", app.DeleteBookFile())
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
