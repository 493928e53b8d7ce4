package service

import (
	"context"
	"time"

	"go-vehicle-counter/internal/assets"
	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/marshal"
	"go-vehicle-counter/internal/observer"
	"go-vehicle-counter/internal/repository"
	"go-vehicle-counter/internal/storage"
	"go-vehicle-counter/internal/strategy"
	"go-vehicle-counter/pkg/models"
	"go-vehicle-counter/pkg/validation"
)

// CountingService runs the counting pipeline: validate, stage, ensure the
// cascade asset (Haar only), invoke the capability and marshal the result.
type CountingService interface {
	// CountDiff counts changed regions between two images of the same scene
	CountDiff(ctx context.Context, first, second string) (*models.CountResponse, error)

	// CountHaar counts cascade detections in a single image
	CountHaar(ctx context.Context, image string) (*models.CountResponse, error)

	// Equalize runs the single-image grayscale equalization transform
	Equalize(ctx context.Context, image string) (*models.CountResponse, error)

	// ValidateSource applies the selection rules to a source reference
	ValidateSource(ref string) error
}

// countingService holds only its injected dependencies
type countingService struct {
	workspace   repository.Workspace
	stager      *storage.Stager
	provisioner assets.Provisioner
	dispatcher  *strategy.Dispatcher
	validator   *validation.SourceValidator
	events      observer.Subject
}

// NewCountingService creates a new counting service
func NewCountingService(
	workspace repository.Workspace,
	stager *storage.Stager,
	provisioner assets.Provisioner,
	dispatcher *strategy.Dispatcher,
	events observer.Subject,
) CountingService {
	if events == nil {
		events = observer.NewEventPublisher()
	}
	return &countingService{
		workspace:   workspace,
		stager:      stager,
		provisioner: provisioner,
		dispatcher:  dispatcher,
		validator:   validation.NewSourceValidator(),
		events:      events,
	}
}

// CountDiff stages first and second into their slots and runs diff & connect
func (s *countingService) CountDiff(ctx context.Context, first, second string) (*models.CountResponse, error) {
	return s.run(ctx, strategy.KindDiffConnect, []input{
		{ref: first, slot: repository.SlotFirst},
		{ref: second, slot: repository.SlotSecond},
	})
}

// CountHaar stages image into the single slot and runs the cascade detector
func (s *countingService) CountHaar(ctx context.Context, image string) (*models.CountResponse, error) {
	return s.run(ctx, strategy.KindHaarCascade, []input{{ref: image, slot: repository.SlotSingle}})
}

// Equalize stages image into the single slot and runs the transform
func (s *countingService) Equalize(ctx context.Context, image string) (*models.CountResponse, error) {
	return s.run(ctx, strategy.KindEqualize, []input{{ref: image, slot: repository.SlotSingle}})
}

// ValidateSource rejects references no configured source can stage, then
// applies the path or URL rules
func (s *countingService) ValidateSource(ref string) error {
	if !s.stager.Supports(ref) {
		return apperrors.NewValidationError("no source configured for reference", storage.ErrUnsupportedScheme).
			WithDetails(storage.SchemeOf(ref))
	}
	return s.validator.ValidateSource(ref)
}

type input struct {
	ref  string
	slot repository.Slot
}

// pipelineRun carries the per-request values through the stages
type pipelineRun struct {
	id      string
	kind    strategy.Kind
	started time.Time
}

func (s *countingService) run(ctx context.Context, kind strategy.Kind, inputs []input) (*models.CountResponse, error) {
	r := &pipelineRun{
		id:      observer.NewRequestID(),
		kind:    kind,
		started: time.Now(),
	}
	refs := make([]string, len(inputs))
	for i, in := range inputs {
		refs[i] = in.ref
	}
	s.publish(ctx, r, observer.PipelineEvent{
		EventType: observer.RequestStarted,
		Success:   true,
		Metadata:  map[string]interface{}{"sources": refs},
	})

	strat, ok := s.dispatcher.Strategy(kind)
	if !ok {
		return nil, s.fail(ctx, r, "dispatch", apperrors.NewValidationError("unknown counting strategy", nil).WithDetails(string(kind)))
	}

	// Validating every input first means an invalid second image never
	// overwrites the first slot.
	for _, in := range inputs {
		if err := s.ValidateSource(in.ref); err != nil {
			return nil, s.fail(ctx, r, "validate", err)
		}
		if _, err := s.stager.Check(in.ref, in.slot); err != nil {
			return nil, s.fail(ctx, r, "validate", err)
		}
	}

	staged := make([]string, 0, len(inputs))
	var ext string
	for _, in := range inputs {
		img, err := s.stager.Stage(ctx, in.ref, in.slot)
		if err != nil {
			return nil, s.fail(ctx, r, "stage", err)
		}
		if ext == "" {
			ext = img.Extension
		}
		staged = append(staged, img.StagedPath)
		s.publish(ctx, r, observer.PipelineEvent{
			EventType: observer.ImageStaged,
			Source:    in.ref,
			Success:   true,
			Metadata: map[string]interface{}{
				"slot":        string(in.slot),
				"staged_path": img.StagedPath,
			},
		})
	}

	req := strategy.Request{
		RequestID: r.id,
		Images:    staged,
		Extension: ext,
	}

	if strat.NeedsAsset() {
		path, err := s.provisioner.Ensure(s.workspace.Root())
		if err != nil {
			return nil, s.fail(ctx, r, "asset", asAppError(err, "failed to provision cascade asset"))
		}
		req.AssetPath = path
		s.publish(ctx, r, observer.PipelineEvent{
			EventType: observer.AssetEnsured,
			Success:   true,
			Metadata:  map[string]interface{}{"asset_path": path},
		})
	}

	outDir, err := s.workspace.OutputDir(string(kind))
	if err != nil {
		return nil, s.fail(ctx, r, "output", apperrors.NewIOError("failed to prepare output directory", err))
	}
	req.OutputDir = outDir

	// a capability invocation cannot be aborted once started
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, r, "invoke", apperrors.NewTimeoutError("request cancelled before invocation", err))
	}

	result, err := s.dispatcher.Dispatch(kind, req)
	if err != nil {
		return nil, s.fail(ctx, r, "invoke", err)
	}
	s.publish(ctx, r, observer.PipelineEvent{
		EventType: observer.CapabilityInvoked,
		Success:   true,
		Metadata: map[string]interface{}{
			"count":       result.Count,
			"output_path": result.OutputPath,
		},
	})

	encoded, err := marshal.Marshal(result)
	if err != nil {
		return nil, s.fail(ctx, r, "marshal", err)
	}

	elapsed := time.Since(r.started)
	s.publish(ctx, r, observer.PipelineEvent{
		EventType:      observer.RequestCompleted,
		ProcessingTime: elapsed,
		Success:        true,
		Metadata:       map[string]interface{}{"count": result.Count},
	})

	return &models.CountResponse{
		RequestID:    r.id,
		Strategy:     string(kind),
		VehicleCount: result.Count,
		Image: models.EncodedImage{
			Base64:   encoded.Base64,
			MimeType: encoded.MimeType,
			DataURI:  encoded.DataURI(),
		},
		Sources:           refs,
		ProcessingTimeSec: elapsed.Seconds(),
		Timestamp:         time.Now().Format(time.RFC3339),
	}, nil
}

// fail publishes the terminal failure event and returns err unchanged
func (s *countingService) fail(ctx context.Context, r *pipelineRun, stage string, err error) error {
	err = asAppError(err, "counting request failed")
	s.publish(ctx, r, observer.PipelineEvent{
		EventType:      observer.RequestFailed,
		ProcessingTime: time.Since(r.started),
		ErrorType:      string(apperrors.TypeOf(err)),
		ErrorMessage:   err.Error(),
		Metadata:       map[string]interface{}{"failed_stage": stage},
	})
	return err
}

func (s *countingService) publish(ctx context.Context, r *pipelineRun, event observer.PipelineEvent) {
	event.RequestID = r.id
	event.Strategy = string(r.kind)
	s.events.NotifyObservers(ctx, event)
}

// asAppError keeps typed errors as they are and wraps anything else
func asAppError(err error, message string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewInternalError(message, err)
}
