package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/stores"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/kendall-kelly/repairdesk-api/services")

// statusTransitions lists the allowed next states when transitions are enforced
var statusTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition reports whether a request may move from one status to another
func CanTransition(from, to models.RequestStatus) bool {
	if from == to {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateRequestInput is what a user submits for a new repair request
type CreateRequestInput struct {
	DeviceType         string                `json:"device_type" validate:"required,max=100"`
	ProblemDescription string                `json:"problem_description" validate:"required,max=5000"`
	DeviceID           string                `json:"device_id" validate:"max=100"`
	Attachment         *multipart.FileHeader `json:"-" validate:"-"`
}

// RequestPatch is a partial update. Nil fields are left unchanged;
// an empty AssignedTo or VendorID clears the reference.
type RequestPatch struct {
	DeviceType         *string
	DeviceID           *string
	ProblemDescription *string
	Status             *models.RequestStatus
	Priority           *models.RequestPriority
	AssignedTo         *string
	VendorID           *string
}

// Actor is the caller of an operation
type Actor struct {
	UserID string
	Role   models.Role
}

// RequestService implements the repair request lifecycle
type RequestService struct {
	requests           *stores.RequestStore
	profiles           *stores.ProfileStore
	vendors            *stores.VendorStore
	attachments        AttachmentService
	validate           *validator.Validate
	enforceTransitions bool
}

// NewRequestService wires the lifecycle manager to its stores
func NewRequestService(requests *stores.RequestStore, profiles *stores.ProfileStore, vendors *stores.VendorStore, attachments AttachmentService, enforceTransitions bool) *RequestService {
	return &RequestService{
		requests:           requests,
		profiles:           profiles,
		vendors:            vendors,
		attachments:        attachments,
		validate:           newValidator(),
		enforceTransitions: enforceTransitions,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "is invalid"
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "max":
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "email":
			msg = "must be a valid email address"
		case "min":
			msg = fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return &models.ValidationError{Field: fe.Field(), Message: msg}
	}
	return &models.ValidationError{Message: err.Error()}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create validates and stores a new request owned by owner.
// The attachment, when present, is uploaded first and removed again if the record cannot be written.
func (s *RequestService) Create(ctx context.Context, owner models.Identity, in CreateRequestInput) (req *models.Request, err error) {
	ctx, span := startSpan(ctx, "RequestService.Create", attribute.String("owner.id", owner.ID))
	defer func() { endSpan(span, err) }()

	in.DeviceType = strings.TrimSpace(in.DeviceType)
	in.ProblemDescription = strings.TrimSpace(in.ProblemDescription)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}

	req = &models.Request{
		UserID:             owner.ID,
		UserEmail:          owner.Email,
		DeviceType:         in.DeviceType,
		ProblemDescription: in.ProblemDescription,
		Status:             models.StatusPending,
		Priority:           models.PriorityLow,
	}
	if in.DeviceID != "" {
		req.DeviceID = &in.DeviceID
	}

	if in.Attachment != nil {
		key, err := s.attachments.Upload(ctx, in.Attachment)
		if err != nil {
			return nil, err
		}
		req.AttachmentKey = &key
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if req.AttachmentKey != nil {
			if delErr := s.attachments.Delete(context.WithoutCancel(ctx), *req.AttachmentKey); delErr != nil {
				logger.WithError(delErr, "request_service").WithField("key", *req.AttachmentKey).Error("Failed to remove orphaned attachment")
			}
		}
		return nil, err
	}

	logger.WithRequest(req.ID).WithField("user_id", owner.ID).Info("Repair request created")
	s.decorate(ctx, req)
	return req, nil
}

// Get returns one request. Owners see their own requests, staff see every request.
func (s *RequestService) Get(ctx context.Context, actor Actor, id string) (*models.Request, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != actor.UserID && !actor.Role.IsStaff() {
		return nil, &models.AuthorizationError{Role: actor.Role, Message: "You can only view your own requests"}
	}
	s.decorate(ctx, req)
	return req, nil
}

// List returns the current contents of a view
func (s *RequestService) List(ctx context.Context, view View) ([]models.Request, error) {
	pred, err := view.predicate()
	if err != nil {
		return nil, err
	}
	snapshot, err := s.requests.List(ctx, pred)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, view, snapshot), nil
}

// Subscribe opens a live feed of a view. The first snapshot arrives immediately.
func (s *RequestService) Subscribe(ctx context.Context, view View) (*Feed, error) {
	pred, err := view.predicate()
	if err != nil {
		return nil, err
	}
	sub, err := s.requests.Subscribe(ctx, pred)
	if err != nil {
		return nil, err
	}
	return newFeed(sub, func(snapshot []models.Request) []models.Request {
		return s.present(ctx, view, snapshot)
	}), nil
}

func (s *RequestService) present(ctx context.Context, view View, snapshot []models.Request) []models.Request {
	out := FilterRequests(snapshot, view.Filter)
	SortNewestFirst(out)
	for i := range out {
		s.decorate(ctx, &out[i])
	}
	return out
}

func (s *RequestService) decorate(ctx context.Context, req *models.Request) {
	if req.AttachmentKey == nil || s.attachments == nil {
		return
	}
	url, err := s.attachments.URL(ctx, *req.AttachmentKey)
	if err != nil {
		logger.WithError(err, "request_service").WithField("request_id", req.ID).Warn("Failed to build attachment URL")
		return
	}
	req.AttachmentURL = &url
}

// Update applies an administrative edit. Status changes here bypass transition rules.
func (s *RequestService) Update(ctx context.Context, id string, patch RequestPatch) (req *models.Request, err error) {
	ctx, span := startSpan(ctx, "RequestService.Update", attribute.String("request.id", id))
	defer func() { endSpan(span, err) }()

	fields, err := s.patchFields(ctx, patch)
	if err != nil {
		return nil, err
	}

	req, err = s.requests.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	logger.WithRequest(id).WithField("fields", len(fields)).Info("Repair request updated")
	s.decorate(ctx, req)
	return req, nil
}

func (s *RequestService) patchFields(ctx context.Context, patch RequestPatch) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	if patch.DeviceType != nil {
		v := strings.TrimSpace(*patch.DeviceType)
		if v == "" {
			return nil, &models.ValidationError{Field: "device_type", Message: "is required"}
		}
		fields["device_type"] = v
	}
	if patch.ProblemDescription != nil {
		v := strings.TrimSpace(*patch.ProblemDescription)
		if v == "" {
			return nil, &models.ValidationError{Field: "problem_description", Message: "is required"}
		}
		fields["problem_description"] = v
	}
	if patch.DeviceID != nil {
		fields["device_id"] = nullable(*patch.DeviceID)
	}
	if patch.Status != nil {
		if _, ok := models.ParseStatus(string(*patch.Status)); !ok {
			return nil, &models.ValidationError{Field: "status", Message: "is not a known status"}
		}
		fields["status"] = *patch.Status
	}
	if patch.Priority != nil {
		if _, ok := models.ParsePriority(string(*patch.Priority)); !ok {
			return nil, &models.ValidationError{Field: "priority", Message: "is not a known priority"}
		}
		fields["priority"] = *patch.Priority
	}
	if patch.AssignedTo != nil {
		assignee := strings.TrimSpace(*patch.AssignedTo)
		if assignee != "" {
			if _, err := s.profiles.Get(ctx, assignee); err != nil {
				if models.IsNotFound(err) {
					return nil, &models.ValidationError{Field: "assigned_to", Message: "does not reference a known user"}
				}
				return nil, err
			}
		}
		fields["assigned_to"] = nullable(assignee)
	}
	if patch.VendorID != nil {
		vendorID := strings.TrimSpace(*patch.VendorID)
		if vendorID != "" && s.vendors != nil {
			if _, err := s.vendors.Get(ctx, vendorID); err != nil {
				if models.IsNotFound(err) {
					return nil, &models.ValidationError{Field: "vendor_id", Message: "does not reference a known vendor"}
				}
				return nil, err
			}
		}
		fields["vendor_id"] = nullable(vendorID)
	}

	return fields, nil
}

func nullable(v string) interface{} {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return v
}

// UpdateStatus changes only the status. Technicians may only change requests assigned to them.
func (s *RequestService) UpdateStatus(ctx context.Context, actor Actor, id string, status models.RequestStatus) (req *models.Request, err error) {
	ctx, span := startSpan(ctx, "RequestService.UpdateStatus",
		attribute.String("request.id", id),
		attribute.String("request.status", string(status)),
	)
	defer func() { endSpan(span, err) }()

	if _, ok := models.ParseStatus(string(status)); !ok {
		return nil, &models.ValidationError{Field: "status", Message: "is not a known status"}
	}
	if !actor.Role.In(models.RoleTechnician, models.RoleAdmin) {
		return nil, &models.AuthorizationError{Role: actor.Role}
	}

	current, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleTechnician && !current.IsAssignedTo(actor.UserID) {
		return nil, &models.AuthorizationError{Role: actor.Role, Message: "You can only update requests assigned to you"}
	}
	if s.enforceTransitions && !CanTransition(current.Status, status) {
		return nil, &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot change from %s to %s", current.Status, status),
		}
	}

	req, err = s.requests.Update(ctx, id, map[string]interface{}{"status": status})
	if err != nil {
		return nil, err
	}

	logger.WithRequest(id).WithFields(map[string]interface{}{
		"user_id": actor.UserID,
		"status":  status,
	}).Info("Repair request status changed")
	s.decorate(ctx, req)
	return req, nil
}

// Delete removes a request permanently together with its attachment.
// Deleting a missing request succeeds.
func (s *RequestService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "RequestService.Delete", attribute.String("request.id", id))
	defer func() { endSpan(span, err) }()

	deleted, err := s.requests.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted == nil {
		return nil
	}

	if deleted.AttachmentKey != nil && s.attachments != nil {
		if err := s.attachments.Delete(ctx, *deleted.AttachmentKey); err != nil {
			logger.WithError(err, "request_service").WithField("request_id", id).Warn("Failed to delete attachment of removed request")
		}
	}

	logger.WithRequest(id).Info("Repair request deleted")
	return nil
}

// ResolveAssignee turns an email or identity id into an identity id
func (s *RequestService) ResolveAssignee(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || !strings.Contains(ref, "@") {
		return ref, nil
	}
	profile, err := s.profiles.FindByEmail(ctx, ref)
	if err != nil {
		if models.IsNotFound(err) {
			return "", &models.ValidationError{Field: "assigned_to", Message: "does not reference a known user"}
		}
		return "", err
	}
	return profile.ID, nil
}
