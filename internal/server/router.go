package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/admin"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/results"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/voter"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	voterIDContextKey = "runway_voter_id"
	voterCookieName   = "runway_voter"
	adminCookieName   = "runway_admin"

	// Voter cookies live for ten years; the identifier is the client's only
	// credential and must survive between contests.
	voterCookieMaxAgeSeconds = 10 * 365 * 24 * 60 * 60

	defaultMaxUploadBytes = 8 << 20
)

var (
	errMissingContestService = errors.New("contest service dependency required")
	errMissingResults        = errors.New("results aggregator dependency required")
	errMissingAdminService   = errors.New("admin service dependency required")
	errMissingAdminSessions  = errors.New("admin sessions dependency required")
	errMissingVoterIdentity  = errors.New("voter identity dependency required")
	errMissingStorage        = errors.New("storage dependency required")
)

// StaticUploads mounts a local image directory on the router. Left empty when
// a remote store serves images itself.
type StaticUploads struct {
	Route     string
	Directory string
}

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	ContestService *contest.Service
	Results        *results.Aggregator
	AdminService   *admin.Service
	AdminSessions  *auth.AdminSessions
	VoterIdentity  *voter.Service
	Storage        storage.Store
	StaticUploads  StaticUploads
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the contest API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ContestService == nil {
		return nil, errMissingContestService
	}
	if deps.Results == nil {
		return nil, errMissingResults
	}
	if deps.AdminService == nil {
		return nil, errMissingAdminService
	}
	if deps.AdminSessions == nil {
		return nil, errMissingAdminSessions
	}
	if deps.VoterIdentity == nil {
		return nil, errMissingVoterIdentity
	}
	if deps.Storage == nil {
		return nil, errMissingStorage
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUploadBytes := deps.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		contestService: deps.ContestService,
		results:        deps.Results,
		adminService:   deps.AdminService,
		adminSessions:  deps.AdminSessions,
		voterIdentity:  deps.VoterIdentity,
		storage:        deps.Storage,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}

	if deps.StaticUploads.Directory != "" && deps.StaticUploads.Route != "" {
		router.Static(deps.StaticUploads.Route, deps.StaticUploads.Directory)
	}

	public := router.Group("/")
	public.Use(handler.identifyVoter)
	public.GET("/contest", handler.handleContestState)
	public.POST("/entries", handler.handleSubmitEntry)
	public.POST("/entries/:id/votes", handler.handleCastVote)
	public.GET("/results", handler.handleResults)

	router.POST("/admin/login", handler.handleAdminLogin)
	router.POST("/admin/logout", handler.handleAdminLogout)

	privileged := router.Group("/admin")
	privileged.Use(handler.authorizeAdmin)
	privileged.GET("/status", handler.handleAdminStatus)
	privileged.POST("/voting/start", handler.handleAdminStartVoting)
	privileged.POST("/voting/close", handler.handleAdminClose)
	privileged.DELETE("/entries/:id", handler.handleAdminDeleteEntry)
	privileged.DELETE("/entries", handler.handleAdminDeleteAllEntries)
	privileged.POST("/reset", handler.handleAdminReset)

	return router, nil
}

type httpHandler struct {
	contestService *contest.Service
	results        *results.Aggregator
	adminService   *admin.Service
	adminSessions  *auth.AdminSessions
	voterIdentity  *voter.Service
	storage        storage.Store
	maxUploadBytes int64
	logger         *zap.Logger
}

// identifyVoter resolves the opaque voter identifier from the long-lived
// cookie, minting one on first contact so the request can proceed without a
// redirect round trip.
func (h *httpHandler) identifyVoter(c *gin.Context) {
	raw, cookieErr := c.Cookie(voterCookieName)
	voterToken := ""
	if cookieErr == nil {
		if normalized, err := voter.Normalize(raw); err == nil {
			voterToken = normalized
		}
	}
	if voterToken == "" {
		minted, err := h.voterIdentity.Mint()
		if err != nil {
			h.logger.Error("failed to mint voter identifier", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		voterToken = minted
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(voterCookieName, voterToken, voterCookieMaxAgeSeconds, "/", "", false, true)
	}
	c.Set(voterIDContextKey, voterToken)
	c.Next()
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	token, err := c.Cookie(adminCookieName)
	if err != nil || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.adminSessions.Validate(token); err != nil {
		h.logger.Warn("admin session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) voterID(c *gin.Context) (contest.VoterID, bool) {
	token := c.GetString(voterIDContextKey)
	voterID, err := contest.NewVoterID(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return "", false
	}
	return voterID, true
}

// writeDomainError maps expected domain conditions to stable HTTP error codes.
// Anything unexpected is logged and reported as an internal error.
func (h *httpHandler) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contest.ErrWrongPhase):
		c.JSON(http.StatusConflict, gin.H{"error": "wrong_phase"})
	case errors.Is(err, contest.ErrCapacityReached):
		c.JSON(http.StatusConflict, gin.H{"error": "capacity_reached"})
	case errors.Is(err, contest.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_submission"})
	case errors.Is(err, contest.ErrDuplicateVote):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_vote"})
	case errors.Is(err, contest.ErrVoteLimitReached):
		c.JSON(http.StatusConflict, gin.H{"error": "vote_limit_reached"})
	case errors.Is(err, contest.ErrSelfVoteForbidden):
		c.JSON(http.StatusConflict, gin.H{"error": "self_vote_forbidden"})
	case errors.Is(err, contest.ErrInvalidPhaseTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_phase_transition"})
	case errors.Is(err, contest.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
	case errors.Is(err, contest.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
	case errors.Is(err, results.ErrResultsNotAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": "results_not_available"})
	case errors.Is(err, storage.ErrUploadFailed):
		h.logger.Warn("image upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload_failed"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
