package http

import (
	"github.com/gin-gonic/gin"

	"natural-alert/internal/bootstrap"
	"natural-alert/internal/chat"
	"natural-alert/internal/retrieval"
	"natural-alert/internal/session"
	"natural-alert/internal/transport/http/handler"
	"natural-alert/internal/vectorindex"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	index := vectorindex.New(
		app.Redis,
		app.Config.Index.Name,
		app.Config.Index.Dimension,
		vectorindex.HNSWParams{
			M:              app.Config.Index.HNSWM,
			EFConstruction: app.Config.Index.HNSWEFConstruct,
			EFRuntime:      app.Config.Index.HNSWEFRuntime,
		},
	)
	tool := retrieval.NewTool(
		app.Embedder,
		index,
		app.Config.Retrieval.DefaultK,
		app.Config.Retrieval.MaxK,
		app.Log,
	)
	store := session.NewStore(app.Redis)

	var archiver chat.TurnArchiver
	if app.TurnPublisher != nil {
		archiver = app.TurnPublisher
	}
	chatService := chat.NewService(
		app.ChatModel,
		store,
		tool,
		session.NewKeyedMutex(),
		archiver,
		app.Config.Retrieval.MaxToolRounds,
		app.Log,
	)

	healthHandler := handler.NewHealthHandler(app)
	chatHandler := handler.NewChatHandler(chatService)

	router.GET("/health", healthHandler.Check)
	router.POST("/chat", chatHandler.Chat)

	return router
}
