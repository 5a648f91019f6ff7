package handlers

import (
	"context"
	"net/http"
	"time"

	"layover-match/internal/auth"
	"layover-match/internal/middleware"
	"layover-match/internal/services"
	"layover-match/internal/session"
	"layover-match/internal/store"
	"layover-match/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP API is built from. Photos and Health
// are optional.
type Deps struct {
	Auth        *auth.Service
	Sessions    *session.Manager
	Airports    store.AirportStore
	Photos      services.PhotoStorage
	Hub         *websocket.Hub
	CORSOrigins []string
	RateLimit   RateLimit
	Health      func(ctx context.Context) error
	Log         *logrus.Entry
}

// RateLimit is the per-caller request budget. The zero value disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

func NewRouter(d Deps) *gin.Engine {
	registerValidators()

	authHandler := NewAuthHandler(d.Auth, d.Sessions)
	profileHandler := NewProfileHandler(d.Sessions, d.Photos, d.Airports, d.Log)
	matchHandler := NewMatchHandler(d.Sessions)
	messageHandler := NewMessageHandler(d.Sessions)
	requireAuth := middleware.AuthRequired(d.Auth)
	limit := middleware.RateLimit(d.RateLimit.RPS, d.RateLimit.Burst)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.Log))
	router.Use(cors.New(corsConfig(d.CORSOrigins)))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		authRoutes.Use(limit)
		{
			authRoutes.POST("/signup", authHandler.SignUp)
			authRoutes.POST("/signin", authHandler.SignIn)
			authRoutes.POST("/signout", requireAuth, authHandler.SignOut)
		}

		v1.GET("/airports", profileHandler.ListAirports)

		authed := v1.Group("")
		authed.Use(requireAuth, limit)
		{
			authed.GET("/session", authHandler.CurrentSession)

			authed.GET("/profile", profileHandler.GetProfile)
			authed.PUT("/profile", profileHandler.UpdateProfile)
			authed.POST("/profile/photo", profileHandler.UploadPhoto)
			authed.PUT("/profile/device-token", profileHandler.RegisterDevice)

			authed.GET("/candidates", matchHandler.GetCandidates)
			authed.POST("/candidates/:user_id/like", matchHandler.LikeUser)
			authed.POST("/candidates/:user_id/dislike", matchHandler.DislikeUser)

			authed.GET("/decisions", matchHandler.GetDecisions)
			authed.POST("/decisions/:user_id/retry", matchHandler.RetryDecision)

			authed.GET("/matches", matchHandler.GetMatches)
			authed.POST("/matches/reconcile", matchHandler.Reconcile)
			authed.GET("/matches/:match_id/messages", messageHandler.GetMessages)
			authed.POST("/matches/:match_id/messages", messageHandler.SendMessage)

			// WebSocket endpoint
			authed.GET("/ws", func(c *gin.Context) {
				sess, ok := currentSession(c, d.Sessions)
				if !ok {
					return
				}
				d.Hub.ServeWS(c.Writer, c.Request, sess.UserID(), sess)
			})
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
