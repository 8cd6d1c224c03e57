package routes

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"school-evoting-backend/handlers"
	"school-evoting-backend/websocket"
)

// Server wraps the HTTP server for graceful shutdown.
type Server struct {
	*http.Server
}

// SetupRouter configures all routes and middleware. wsHandler may be nil
// in tests that do not exercise the live feed.
func SetupRouter(wsHandler *websocket.Handler) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.InitRateLimiters()

	if wsHandler != nil {
		wsHandler.RegisterRoutes(router)
	}

	api := router.Group("/api")
	{
		api.Use(handlers.RateLimitMiddleware())

		api.GET("/health", handlers.HealthCheck)

		// unauthenticated surface: login plus what the voting page needs
		api.POST("/auth/login", handlers.Login)
		api.POST("/auth/logout", handlers.Logout)
		api.POST("/admin/login", handlers.AdminLogin)
		api.GET("/election", handlers.ElectionStatus)
		api.GET("/candidates", handlers.ListCandidates)
		api.GET("/election/live", handlers.HandleTurnoutSSE)

		// voter session required
		voter := api.Group("")
		voter.Use(handlers.RequireVoter())
		{
			voter.GET("/auth/me", handlers.Me)
			voter.POST("/vote", handlers.CastVote)
		}

		// admin session required
		admin := api.Group("/admin")
		admin.Use(handlers.RequireAdmin())
		{
			admin.GET("/status", handlers.SystemStatus)
			admin.GET("/results", handlers.GetResults)

			admin.POST("/election/open", handlers.SetVotingOpen)
			admin.POST("/election/window", handlers.SetElectionWindow)
			admin.POST("/election/reset", handlers.ResetElection)

			admin.GET("/candidates", handlers.ListAllCandidates)
			admin.POST("/candidates", handlers.CreateCandidate)
			admin.PUT("/candidates/:id", handlers.UpdateCandidate)
			admin.DELETE("/candidates/:id", handlers.DeleteCandidate)

			admin.GET("/voters", handlers.ListVoters)
			admin.POST("/voters", handlers.CreateVoter)
			admin.POST("/voters/import", handlers.ImportVoters)
			admin.POST("/voters/:id/token", handlers.IssueToken)
			admin.POST("/tokens/bulk", handlers.BulkIssueTokens)

			admin.GET("/ratelimit/stats", handlers.GetRateLimiterStats)
			admin.POST("/audit/retry", handlers.RetryAuditDeadLetters)
		}
	}

	return router
}

func corsOrigins() []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return []string{origins}
	}
	return []string{"*"}
}

// StartServer starts the HTTP server on SERVER_PORT (default 8090).
func StartServer(router *gin.Engine) *Server {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090"
	}
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	return srv
}
