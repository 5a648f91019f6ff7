package handlers

import (
	"net/http"

	"layover-match/internal/models"
	"layover-match/internal/session"

	"github.com/gin-gonic/gin"
)

type MatchHandler struct {
	sessions *session.Manager
}

type CandidatesQuery struct {
	AirportCode string `form:"airport_code" binding:"omitempty,iata"`
	Terminal    string `form:"terminal" binding:"omitempty,max=16"`
}

func NewMatchHandler(sessions *session.Manager) *MatchHandler {
	return &MatchHandler{sessions: sessions}
}

// GetCandidates reloads the candidate pool. Without a query the caller's own
// airport and terminal are used.
func (h *MatchHandler) GetCandidates(c *gin.Context) {
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}

	var q CandidatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	pool, err := sess.LoadCandidates(c.Request.Context(), models.LocationScope{AirportCode: q.AirportCode, Terminal: q.Terminal})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": pool})
}

func (h *MatchHandler) LikeUser(c *gin.Context) {
	h.decide(c, session.Like)
}

func (h *MatchHandler) DislikeUser(c *gin.Context) {
	h.decide(c, session.Dislike)
}

func (h *MatchHandler) decide(c *gin.Context, verdict session.Verdict) {
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}

	res, err := sess.Decide(c.Request.Context(), c.Param("user_id"), verdict)
	if err != nil {
		respondError(c, err)
		return
	}
	respondDecision(c, res)
}

func respondDecision(c *gin.Context, res *session.DecisionResult) {
	if res.Matched {
		c.JSON(http.StatusCreated, gin.H{"message": "It's a match!", "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// GetDecisions lists likes that have not been confirmed by the store.
func (h *MatchHandler) GetDecisions(c *gin.Context) {
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": sess.PendingDecisions()})
}

func (h *MatchHandler) RetryDecision(c *gin.Context) {
	sess, ok := profiledSession(c, h.sessions)
	if !ok {
		return
	}

	res, err := sess.Retry(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondDecision(c, res)
}

func (h *MatchHandler) GetMatches(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": sess.Matches()})
}

func (h *MatchHandler) Reconcile(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}

	added, err := sess.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_matches": added, "matches": sess.Matches()})
}
