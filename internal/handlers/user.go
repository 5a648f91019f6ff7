package handlers

import (
	"net/http"
	"strings"
	"time"

	"layover-match/internal/models"
	"layover-match/internal/services"
	"layover-match/internal/session"
	"layover-match/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ProfileHandler struct {
	sessions *session.Manager
	photos   services.PhotoStorage
	airports store.AirportStore
	log      *logrus.Entry
}

type UpdateProfileRequest struct {
	Name         string     `json:"name" binding:"required,max=80"`
	Age          int        `json:"age" binding:"omitempty,gte=18,lte=120"`
	Gender       string     `json:"gender" binding:"omitempty,max=32"`
	Bio          string     `json:"bio" binding:"omitempty,max=500"`
	AirportCode  string     `json:"airport_code" binding:"required,iata"`
	Terminal     string     `json:"terminal" binding:"omitempty,max=16"`
	FlightNumber string     `json:"flight_number" binding:"omitempty,max=16"`
	Gate         string     `json:"gate" binding:"omitempty,max=16"`
	Destination  string     `json:"destination" binding:"omitempty,iata"`
	BoardingTime *time.Time `json:"boarding_time,omitempty"`
}

func NewProfileHandler(sessions *session.Manager, photos services.PhotoStorage, airports store.AirportStore, log *logrus.Entry) *ProfileHandler {
	return &ProfileHandler{
		sessions: sessions,
		photos:   photos,
		airports: airports,
		log:      log,
	}
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}

	id := sess.Identity()
	if id.Profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "session": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": id.Profile, "session": id})
}

// UpdateProfile creates or replaces the caller's profile; the first save
// completes onboarding.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	profile, err := sess.UpdateProfile(c.Request.Context(), func(p *models.Profile) {
		p.Name = req.Name
		p.Age = req.Age
		p.Gender = req.Gender
		p.Bio = req.Bio
		p.AirportCode = req.AirportCode
		p.Terminal = strings.TrimSpace(req.Terminal)
		p.FlightNumber = strings.ToUpper(strings.TrimSpace(req.FlightNumber))
		p.Gate = strings.ToUpper(strings.TrimSpace(req.Gate))
		p.Destination = strings.ToUpper(req.Destination)
		p.BoardingTime = req.BoardingTime
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"profile": profile,
		"session": sess.Identity(),
	})
}

func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	if h.photos == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errNoPhotoRepo.Error()})
		return
	}
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if err := h.photos.CheckImage(contentType, header.Size); err != nil {
		respondError(c, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	url, err := h.photos.UploadPhoto(ctx, sess.UserID(), file, header.Size, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	var previous *string
	profile, err := sess.UpdateProfile(ctx, func(p *models.Profile) {
		previous = p.PhotoURL
		p.PhotoURL = &url
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if previous != nil && *previous != url {
		if err := h.photos.DeleteFile(ctx, *previous); err != nil {
			h.log.WithError(err).WithField("user_id", sess.UserID()).Warn("Failed to delete previous photo")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Photo uploaded successfully", "profile": profile})
}

// RegisterDevice stores the push token of the caller's device.
func (h *ProfileHandler) RegisterDevice(c *gin.Context) {
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}

	var req struct {
		Token string `json:"token" binding:"required,max=4096"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if _, err := sess.UpdateProfile(c.Request.Context(), func(p *models.Profile) {
		p.DeviceToken = &req.Token
	}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device registered successfully"})
}

func (h *ProfileHandler) ListAirports(c *gin.Context) {
	airports, err := h.airports.ListAirports(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"airports": airports})
}
