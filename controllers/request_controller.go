package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/guard"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/kendall-kelly/repairdesk-api/session"
)

// streamHeartbeat keeps idle event streams open through proxies
const streamHeartbeat = 25 * time.Second

// CreateRequestBody is accepted as JSON or as multipart form fields
type CreateRequestBody struct {
	DeviceType         string `json:"device_type" form:"device_type"`
	ProblemDescription string `json:"problem_description" form:"problem_description"`
	DeviceID           string `json:"device_id" form:"device_id"`
}

// UpdateRequestBody is a partial update; omitted fields are unchanged
type UpdateRequestBody struct {
	DeviceType         *string `json:"device_type"`
	DeviceID           *string `json:"device_id"`
	ProblemDescription *string `json:"problem_description"`
	Status             *string `json:"status"`
	Priority           *string `json:"priority"`
	AssignedTo         *string `json:"assigned_to"`
	VendorID           *string `json:"vendor_id"`
}

// UpdateStatusBody changes only the status
type UpdateStatusBody struct {
	Status string `json:"status" binding:"required"`
}

type RequestController struct {
	requests *services.RequestService
	changes  session.ChangeSource
}

// NewRequestController builds the handlers. changes may be nil, in which case
// live streams are not ended by a sign-out.
func NewRequestController(requests *services.RequestService, changes session.ChangeSource) *RequestController {
	return &RequestController{requests: requests, changes: changes}
}

func actorFrom(c *gin.Context) (services.Actor, *models.Identity) {
	state := middleware.CurrentState(c)
	actor := services.Actor{Role: state.Role}
	if state.Identity != nil {
		actor.UserID = state.Identity.ID
	}
	return actor, state.Identity
}

// Create handles POST /api/v1/requests - submits a new repair request
func (rc *RequestController) Create(c *gin.Context) {
	_, identity := actorFrom(c)
	if identity == nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}

	// Bind JSON or form fields depending on the content type
	var body CreateRequestBody
	if err := c.ShouldBind(&body); err != nil {
		respondBindError(c, err)
		return
	}

	input := services.CreateRequestInput{
		DeviceType:         body.DeviceType,
		ProblemDescription: body.ProblemDescription,
		DeviceID:           body.DeviceID,
	}
	// The attachment is optional
	if c.ContentType() == "multipart/form-data" {
		fileHeader, err := c.FormFile("attachment")
		switch {
		case err == nil:
			input.Attachment = fileHeader
		case !errors.Is(err, http.ErrMissingFile):
			respondError(c, http.StatusBadRequest, "INVALID_FILE", "Could not read the uploaded file")
			return
		}
	}

	// Create the request, which uploads the attachment first
	req, err := rc.requests.Create(c.Request.Context(), *identity, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, req)
}

func listPayload(list []models.Request) gin.H {
	if list == nil {
		list = []models.Request{}
	}
	return gin.H{
		"requests": list,
		"total":    len(list),
		"counts":   services.CountByStatus(list),
	}
}

func (rc *RequestController) list(c *gin.Context, view services.View) {
	list, err := rc.requests.List(c.Request.Context(), view)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, listPayload(list))
}

func (rc *RequestController) allView(c *gin.Context) (services.View, bool) {
	var filter services.RequestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return services.View{}, false
	}
	return services.AllView(filter), true
}

// ListMine handles GET /api/v1/requests/mine - the caller's own requests
func (rc *RequestController) ListMine(c *gin.Context) {
	actor, _ := actorFrom(c)
	rc.list(c, services.OwnView(actor.UserID))
}

// ListAll handles GET /api/v1/requests - every request, narrowed by q, status and priority
func (rc *RequestController) ListAll(c *gin.Context) {
	if view, ok := rc.allView(c); ok {
		rc.list(c, view)
	}
}

// ListAssigned handles GET /api/v1/requests/assigned - requests assigned to the caller
func (rc *RequestController) ListAssigned(c *gin.Context) {
	actor, _ := actorFrom(c)
	rc.list(c, services.AssignedView(actor.UserID))
}

// StreamMine handles GET /api/v1/requests/mine/stream
func (rc *RequestController) StreamMine(c *gin.Context) {
	actor, _ := actorFrom(c)
	rc.stream(c, services.OwnView(actor.UserID), guard.OwnRequestRoles)
}

// StreamAll handles GET /api/v1/requests/stream
func (rc *RequestController) StreamAll(c *gin.Context) {
	if view, ok := rc.allView(c); ok {
		rc.stream(c, view, guard.AllRequestRoles)
	}
}

// StreamAssigned handles GET /api/v1/requests/assigned/stream
func (rc *RequestController) StreamAssigned(c *gin.Context) {
	actor, _ := actorFrom(c)
	rc.stream(c, services.AssignedView(actor.UserID), guard.AssignedRequestRoles)
}

// stream sends a "snapshot" event with the full list on open and after every change.
// Every session change is checked against allowed again. The stream ends with "signed_out"
// when the session signs out, with "forbidden" when the role no longer qualifies, or when
// the client disconnects.
func (rc *RequestController) stream(c *gin.Context, view services.View, allowed []models.Role) {
	ctx := c.Request.Context()

	feed, err := rc.requests.Subscribe(ctx, view)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer feed.Close()

	var changes <-chan session.State
	if sc, ok := middleware.GetSession(c); ok && rc.changes != nil {
		if state := sc.Current(); state.Identity != nil {
			changes = sc.Watch()
			sc.Bind(ctx, rc.changes, state.Identity.ID)
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-feed.Updates():
			if !ok {
				return
			}
			c.SSEvent("snapshot", listPayload(list))
			c.Writer.Flush()
		case state, ok := <-changes:
			if !ok {
				return
			}
			switch guard.Decide(state, allowed) {
			case guard.RedirectLogin:
				logger.WithComponent("request_stream").Info("Closing stream after sign-out")
				c.SSEvent("signed_out", gin.H{"redirect": guard.LoginPath})
				c.Writer.Flush()
				return
			case guard.RedirectHome:
				logger.WithComponent("request_stream").WithField("role", state.Role.String()).Info("Closing stream after role change")
				c.SSEvent("forbidden", gin.H{"redirect": guard.HomePath})
				c.Writer.Flush()
				return
			}
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// Get handles GET /api/v1/requests/:id - owners and staff only
func (rc *RequestController) Get(c *gin.Context) {
	actor, _ := actorFrom(c)
	req, err := rc.requests.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// Update handles PATCH /api/v1/requests/:id - administrative edit of any subset of fields
func (rc *RequestController) Update(c *gin.Context) {
	var body UpdateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	patch := services.RequestPatch{
		DeviceType:         body.DeviceType,
		DeviceID:           body.DeviceID,
		ProblemDescription: body.ProblemDescription,
		VendorID:           body.VendorID,
	}
	if body.Status != nil {
		status := models.RequestStatus(*body.Status)
		if parsed, ok := models.ParseStatus(*body.Status); ok {
			status = parsed
		}
		patch.Status = &status
	}
	if body.Priority != nil {
		priority := models.RequestPriority(*body.Priority)
		if parsed, ok := models.ParsePriority(*body.Priority); ok {
			priority = parsed
		}
		patch.Priority = &priority
	}
	if body.AssignedTo != nil {
		assignee, err := rc.requests.ResolveAssignee(c.Request.Context(), *body.AssignedTo)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		patch.AssignedTo = &assignee
	}

	req, err := rc.requests.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// UpdateStatus handles PATCH /api/v1/requests/:id/status
func (rc *RequestController) UpdateStatus(c *gin.Context) {
	var body UpdateStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	status := models.RequestStatus(body.Status)
	if parsed, ok := models.ParseStatus(body.Status); ok {
		status = parsed
	}

	actor, _ := actorFrom(c)
	req, err := rc.requests.UpdateStatus(c.Request.Context(), actor, c.Param("id"), status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// Delete handles DELETE /api/v1/requests/:id?confirm=true - permanent removal
func (rc *RequestController) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		respondError(c, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "Add confirm=true to delete this request permanently")
		return
	}

	if err := rc.requests.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}
