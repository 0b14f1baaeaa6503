// Package service exposes the analysis pipeline over Connect RPC.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/diet"
	"github.com/castlemilk/dietplanner/internal/extraction"
	"github.com/castlemilk/dietplanner/internal/logging"
	"github.com/castlemilk/dietplanner/internal/pipeline"
	"github.com/castlemilk/dietplanner/internal/store"
)

// ServiceName is the fully-qualified name of the RPC service.
const ServiceName = "dietplanner.v1.DietPlannerService"

const (
	AnalyzeDocumentProcedure    = "/" + ServiceName + "/AnalyzeDocument"
	GetAnalysisEventProcedure   = "/" + ServiceName + "/GetAnalysisEvent"
	ListAnalysisEventsProcedure = "/" + ServiceName + "/ListAnalysisEvents"
)

type AnalyzeDocumentRequest struct {
	Filename          string         `json:"filename"`
	DocumentData      []byte         `json:"document_data"`
	ManualText        string         `json:"manual_text"`
	DietaryPreference string         `json:"dietary_preference"`
	Hints             pipeline.Hints `json:"hints"`
}

type AnalyzeDocumentResponse struct {
	Analysis *pipeline.Analysis `json:"analysis"`
	PlanText string             `json:"plan_text"`
}

type GetAnalysisEventRequest struct {
	ID string `json:"id"`
}

type GetAnalysisEventResponse struct {
	Event *store.AnalysisEvent `json:"event"`
}

type ListAnalysisEventsRequest struct {
	Limit     int32     `json:"limit"`
	PageToken string    `json:"page_token"`
	Since     time.Time `json:"since"`
}

type ListAnalysisEventsResponse struct {
	Events        []*store.AnalysisEvent `json:"events"`
	NextPageToken string                 `json:"next_page_token"`
}

type DietPlannerService struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	logger   *zap.Logger
}

func NewDietPlannerService(p *pipeline.Pipeline, s store.Store, logger *zap.Logger) *DietPlannerService {
	return &DietPlannerService{pipeline: p, store: s, logger: logging.OrNop(logger)}
}

// AnalyzeDocument runs the pipeline on an uploaded document, or on manual
// text when no document data is sent.
func (s *DietPlannerService) AnalyzeDocument(ctx context.Context, req *connect.Request[AnalyzeDocumentRequest]) (*connect.Response[AnalyzeDocumentResponse], error) {
	pref, err := diet.ParsePreference(req.Msg.DietaryPreference)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	in := pipeline.Request{
		Text:       req.Msg.ManualText,
		Preference: pref,
		Hints:      req.Msg.Hints,
	}
	if len(req.Msg.DocumentData) > 0 {
		in.Document = &extraction.Document{Name: req.Msg.Filename, Data: req.Msg.DocumentData}
	}

	analysis, err := s.pipeline.Run(ctx, in)
	if err != nil {
		return nil, s.mapAnalysisError(err)
	}
	return connect.NewResponse(&AnalyzeDocumentResponse{
		Analysis: analysis,
		PlanText: diet.RenderText(analysis.Result.WeeklyPlan),
	}), nil
}

var errNoStore = errors.New("analysis event store is not configured")

// GetAnalysisEvent returns one recorded analysis event.
func (s *DietPlannerService) GetAnalysisEvent(ctx context.Context, req *connect.Request[GetAnalysisEventRequest]) (*connect.Response[GetAnalysisEventResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errNoStore)
	}
	if req.Msg.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id is required"))
	}

	event, err := s.store.GetAnalysisEvent(ctx, req.Msg.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("analysis event %q not found", req.Msg.ID))
		}
		s.logger.Error("failed to get analysis event", zap.String("id", req.Msg.ID), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to get analysis event"))
	}
	return connect.NewResponse(&GetAnalysisEventResponse{Event: event}), nil
}

// ListAnalysisEvents returns recorded analysis events, newest first.
func (s *DietPlannerService) ListAnalysisEvents(ctx context.Context, req *connect.Request[ListAnalysisEventsRequest]) (*connect.Response[ListAnalysisEventsResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errNoStore)
	}
	if req.Msg.Limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("limit must not be negative, got %d", req.Msg.Limit))
	}

	events, next, err := s.store.ListAnalysisEvents(ctx, req.Msg.Since, req.Msg.Limit, req.Msg.PageToken)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPageToken) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		s.logger.Error("failed to list analysis events", zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to list analysis events"))
	}
	if events == nil {
		events = []*store.AnalysisEvent{}
	}
	return connect.NewResponse(&ListAnalysisEventsResponse{Events: events, NextPageToken: next}), nil
}

// mapAnalysisError maps pipeline errors to Connect-RPC error codes. Internal
// failures are logged and reach the client only as a generic message.
func (s *DietPlannerService) mapAnalysisError(err error) *connect.Error {
	switch {
	case pipeline.IsUserError(err):
		var extErr *extraction.ExtractionError
		if errors.As(err, &extErr) {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: %s", extErr.Code, extErr.Message))
		}
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		s.logger.Error("analysis failed", zap.Error(err))
		return connect.NewError(connect.CodeInternal, errors.New("analysis failed"))
	}
}

// NewHandler mounts the service's procedures and returns the path prefix to
// register on a mux.
func NewHandler(svc *DietPlannerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AnalyzeDocumentProcedure, connect.NewUnaryHandler(AnalyzeDocumentProcedure, svc.AnalyzeDocument, opts...))
	mux.Handle(GetAnalysisEventProcedure, connect.NewUnaryHandler(GetAnalysisEventProcedure, svc.GetAnalysisEvent, opts...))
	mux.Handle(ListAnalysisEventsProcedure, connect.NewUnaryHandler(ListAnalysisEventsProcedure, svc.ListAnalysisEvents, opts...))
	return "/" + ServiceName + "/", mux
}
