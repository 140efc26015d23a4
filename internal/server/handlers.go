package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/results"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contestPayload struct {
	Status                string `json:"status"`
	Title                 string `json:"title"`
	MaxEntries            *int   `json:"max_entries,omitempty"`
	VotesPerVoter         int    `json:"votes_per_voter"`
	VotingOpenedAtSeconds *int64 `json:"voting_opened_at_s,omitempty"`
	VotingEndsAtSeconds   *int64 `json:"voting_ends_at_s,omitempty"`
}

type entryPayload struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	ImageRef         string `json:"image_ref"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	Mine             bool   `json:"mine"`
}

type indexStatePayload struct {
	Contest        contestPayload `json:"contest"`
	Entries        []entryPayload `json:"entries"`
	VotesUsed      int            `json:"votes_used"`
	VotesRemaining int            `json:"votes_remaining"`
}

type rankedEntryPayload struct {
	EntryID          int64  `json:"entry_id"`
	Title            string `json:"title"`
	ImageRef         string `json:"image_ref"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	VoteCount        int64  `json:"vote_count"`
}

type resultsPayload struct {
	Ranking  []rankedEntryPayload `json:"ranking"`
	TopThree []rankedEntryPayload `json:"top_three"`
}

type cleanupPayload struct {
	Deleted         int      `json:"deleted"`
	StorageWarnings []string `json:"storage_warnings,omitempty"`
}

func toContestPayload(c contest.Contest) contestPayload {
	return contestPayload{
		Status:                string(c.Status),
		Title:                 c.Title,
		MaxEntries:            c.MaxEntries,
		VotesPerVoter:         c.VotesPerVoter,
		VotingOpenedAtSeconds: c.VotingOpenedAtSeconds,
		VotingEndsAtSeconds:   c.VotingEndsAtSeconds,
	}
}

func toRankedPayloads(ranking []results.RankedEntry) []rankedEntryPayload {
	payloads := make([]rankedEntryPayload, 0, len(ranking))
	for _, ranked := range ranking {
		payloads = append(payloads, rankedEntryPayload{
			EntryID:          ranked.EntryID,
			Title:            ranked.Title,
			ImageRef:         ranked.ImageRef,
			CreatedAtSeconds: ranked.CreatedAtSeconds,
			VoteCount:        ranked.VoteCount,
		})
	}
	return payloads
}

func (h *httpHandler) handleContestState(c *gin.Context) {
	voterID, ok := h.voterID(c)
	if !ok {
		return
	}

	state, err := h.contestService.Snapshot(c.Request.Context(), voterID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	entries := make([]entryPayload, 0, len(state.Entries))
	for _, entry := range state.Entries {
		entries = append(entries, entryPayload{
			ID:               entry.ID,
			Title:            entry.Title,
			ImageRef:         entry.ImageRef,
			CreatedAtSeconds: entry.CreatedAtSeconds,
			Mine:             entry.CreatorID == voterID.String(),
		})
	}

	c.JSON(http.StatusOK, indexStatePayload{
		Contest:        toContestPayload(state.Contest),
		Entries:        entries,
		VotesUsed:      state.VotesUsed,
		VotesRemaining: state.VotesRemaining,
	})
}

type submitRequestPayload struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

func (h *httpHandler) handleSubmitEntry(c *gin.Context) {
	voterID, ok := h.voterID(c)
	if !ok {
		return
	}

	// Oversized payloads must be rejected before any database mutation.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	title, imageRef, ok := h.resolveSubmission(c)
	if !ok {
		return
	}

	entry, err := h.contestService.SubmitEntry(c.Request.Context(), voterID, title, imageRef)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entryPayload{
		ID:               entry.ID,
		Title:            entry.Title,
		ImageRef:         entry.ImageRef,
		CreatedAtSeconds: entry.CreatedAtSeconds,
		Mine:             true,
	})
}

// resolveSubmission extracts the entry title and image reference from either
// a multipart upload (stored before the insert so a failed upload never
// creates a dangling entry) or a JSON body carrying an external image URL.
func (h *httpHandler) resolveSubmission(c *gin.Context) (string, string, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		title := strings.TrimSpace(c.PostForm("title"))
		fileHeader, err := c.FormFile("image")
		if err != nil {
			if isPayloadTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
				return "", "", false
			}
			// No file attached: fall back to a pasted URL field.
			return title, strings.TrimSpace(c.PostForm("image_url")), true
		}
		file, err := fileHeader.Open()
		if err != nil {
			h.logger.Warn("failed to open uploaded image", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
			return "", "", false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			if isPayloadTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
				return "", "", false
			}
			h.logger.Warn("failed to read uploaded image", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
			return "", "", false
		}
		imageRef, err := h.storage.Store(c.Request.Context(), data, fileHeader.Header.Get("Content-Type"), title)
		if err != nil {
			h.writeDomainError(c, err)
			return "", "", false
		}
		return title, imageRef, true
	}

	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		if isPayloadTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
			return "", "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", "", false
	}
	return strings.TrimSpace(request.Title), strings.TrimSpace(request.ImageURL), true
}

func isPayloadTooLarge(err error) bool {
	var maxBytesError *http.MaxBytesError
	return errors.As(err, &maxBytesError)
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	voterID, ok := h.voterID(c)
	if !ok {
		return
	}
	entryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry_id"})
		return
	}

	if err := h.contestService.CastVote(c.Request.Context(), voterID, entryID); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *httpHandler) handleResults(c *gin.Context) {
	if err := h.contestService.Tick(c.Request.Context()); err != nil {
		h.writeDomainError(c, err)
		return
	}
	ranking, err := h.results.Ranking(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	payloads := toRankedPayloads(ranking)
	c.JSON(http.StatusOK, resultsPayload{
		Ranking:  payloads,
		TopThree: toRankedPayloads(results.TopThree(ranking)),
	})
}

type adminLoginPayload struct {
	Key string `json:"key"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request adminLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresAt, err := h.adminSessions.Login(request.Key)
	if err != nil {
		h.logger.Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(adminCookieName, token, int(time.Until(expiresAt).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "expires_at": expiresAt.Unix()})
}

func (h *httpHandler) handleAdminLogout(c *gin.Context) {
	c.SetCookie(adminCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleAdminStatus(c *gin.Context) {
	stats, err := h.adminService.Status(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contest":     toContestPayload(stats.Contest),
		"entry_count": stats.EntryCount,
		"vote_count":  stats.VoteCount,
	})
}

func (h *httpHandler) handleAdminStartVoting(c *gin.Context) {
	if err := h.adminService.ForceStartVoting(c.Request.Context()); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "voting"})
}

func (h *httpHandler) handleAdminClose(c *gin.Context) {
	if err := h.adminService.ForceClose(c.Request.Context()); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *httpHandler) handleAdminDeleteEntry(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entry_id"})
		return
	}
	report, err := h.adminService.DeleteEntry(c.Request.Context(), entryID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, cleanupPayload{Deleted: report.Deleted, StorageWarnings: report.StorageWarnings})
}

func (h *httpHandler) handleAdminDeleteAllEntries(c *gin.Context) {
	report, err := h.adminService.DeleteAllEntries(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, cleanupPayload{Deleted: report.Deleted, StorageWarnings: report.StorageWarnings})
}

func (h *httpHandler) handleAdminReset(c *gin.Context) {
	report, err := h.adminService.ResetContest(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, cleanupPayload{Deleted: report.Deleted, StorageWarnings: report.StorageWarnings})
}
