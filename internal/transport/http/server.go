package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/ai"
	appsvc "gopherchat/internal/app"
	"gopherchat/internal/bootstrap"
	"gopherchat/internal/cache"
	"gopherchat/internal/oauth"
	"gopherchat/internal/platform/rabbitmq"
	"gopherchat/internal/repository"
	"gopherchat/internal/search"
	"gopherchat/internal/transport/http/handler"
	"gopherchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	conversationRepo := repository.NewConversationRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	apiKeyRepo := repository.NewApiKeyRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	apiKeyService := appsvc.NewApiKeyService(apiKeyRepo)
	searchService := appsvc.NewSearchService(search.NewClient(app.Config.Search.BaseURL, app.Config.Search.APIKey))
	chatService := appsvc.NewChatService(
		conversationRepo,
		messageRepo,
		userRepo,
		apiKeyService,
		publisher,
		historyCache,
		searchService,
		ai.ChatConfig{
			BaseURL:     app.Config.LLM.BaseURL,
			APIKey:      app.Config.LLM.APIKey,
			Model:       app.Config.LLM.Model,
			Temperature: app.Config.LLM.Temperature,
			MaxTokens:   app.Config.LLM.MaxTokens,
		},
	)
	imageService := appsvc.NewImageService(apiKeyService, ai.ImageConfig{
		BaseURL: app.Config.Image.BaseURL,
		APIKey:  app.Config.Image.APIKey,
		Model:   app.Config.Image.Model,
	})
	codeService := appsvc.NewCodeService(
		app.ObjectStore,
		time.Duration(app.Config.Storage.DownloadTTLMin)*time.Minute,
	)
	googleProvider := oauth.NewGoogleProvider(app.Config.OAuth)

	authHandler := handler.NewAuthHandler(authService, googleProvider)
	chatHandler := handler.NewChatHandler(chatService)
	apiKeyHandler := handler.NewApiKeyHandler(apiKeyService)
	searchHandler := handler.NewSearchHandler(searchService)
	imageHandler := handler.NewImageHandler(imageService)
	codeHandler := handler.NewCodeHandler(codeService)

	jwtSecret := app.Config.Auth.JWTSecret

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", middleware.AuthJWT(jwtSecret), authHandler.Me)
	authGroup.GET("/oauth/google", authHandler.GoogleRedirect)
	authGroup.GET("/oauth/google/callback", authHandler.GoogleCallback)
	authGroup.POST("/oauth/google", authHandler.GoogleToken)

	// Chat allows guests; everything below requires a token.
	v1.POST("/chat", middleware.AuthJWTOrGuest(jwtSecret), chatHandler.Chat)

	conversationGroup := v1.Group("/conversations")
	conversationGroup.Use(middleware.AuthJWT(jwtSecret))
	conversationGroup.POST("", chatHandler.CreateConversation)
	conversationGroup.GET("", chatHandler.ListConversations)
	conversationGroup.GET("/:id", chatHandler.GetConversation)
	conversationGroup.DELETE("/:id", chatHandler.DeleteConversation)

	keysGroup := v1.Group("/api-keys")
	keysGroup.Use(middleware.AuthJWT(jwtSecret))
	keysGroup.GET("", apiKeyHandler.Get)
	keysGroup.POST("", apiKeyHandler.Save)

	v1.POST("/search", middleware.AuthJWT(jwtSecret), searchHandler.Search)
	v1.POST("/image/generate", middleware.AuthJWTOrGuest(jwtSecret), imageHandler.Generate)
	v1.POST("/code/download", middleware.AuthJWT(jwtSecret), codeHandler.Download)

	return router
}
