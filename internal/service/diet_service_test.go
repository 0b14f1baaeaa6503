package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/diet"
	"github.com/castlemilk/dietplanner/internal/extraction"
	"github.com/castlemilk/dietplanner/internal/pipeline"
	"github.com/castlemilk/dietplanner/internal/store"
)

const scenarioCSV = "age,glucose,cholesterol,blood_pressure,bmi,doctor_prescription\n" +
	"52,110,250,150,27,Patient shows signs of hypertension and high cholesterol\n"

type testServer struct {
	analyze *connect.Client[AnalyzeDocumentRequest, AnalyzeDocumentResponse]
	get     *connect.Client[GetAnalysisEventRequest, GetAnalysisEventResponse]
	list    *connect.Client[ListAnalysisEventsRequest, ListAnalysisEventsResponse]
	url     string
}

func newTestServer(t *testing.T, events store.Store) *testServer {
	t.Helper()
	p, err := pipeline.New(pipeline.WithStore(events))
	require.NoError(t, err)

	path, handler := NewHandler(NewDietPlannerService(p, events, nil),
		connect.WithInterceptors(TimeoutInterceptor(5*time.Second)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		analyze: connect.NewClient[AnalyzeDocumentRequest, AnalyzeDocumentResponse](
			srv.Client(), srv.URL+AnalyzeDocumentProcedure, WithJSON()),
		get: connect.NewClient[GetAnalysisEventRequest, GetAnalysisEventResponse](
			srv.Client(), srv.URL+GetAnalysisEventProcedure, WithJSON()),
		list: connect.NewClient[ListAnalysisEventsRequest, ListAnalysisEventsResponse](
			srv.Client(), srv.URL+ListAnalysisEventsProcedure, WithJSON()),
		url: srv.URL,
	}
}

func TestAnalyzeDocument_CSVScenario(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())

	res, err := ts.analyze.CallUnary(context.Background(), connect.NewRequest(&AnalyzeDocumentRequest{
		Filename:          "report.csv",
		DocumentData:      []byte(scenarioCSV),
		DietaryPreference: "vegan",
	}))
	require.NoError(t, err)

	a := res.Msg.Analysis
	require.NotNil(t, a)
	assert.Equal(t, []string{"High Cholesterol", "Hypertension"}, a.Result.DetectedConditions.Strings())
	assert.Equal(t, classifier.RiskAbnormal, a.Result.RiskLabel)
	assert.Equal(t, diet.GroupCholesterol, a.MenuGroup)
	assert.Equal(t, diet.Vegan, a.Preference)
	assert.Contains(t, a.Result.RestrictedFoods, "salt")
	assert.Contains(t, a.Result.RestrictedFoods, "oily food")
	assert.Len(t, a.Result.WeeklyPlan, 7)

	assert.True(t, strings.HasPrefix(res.Msg.PlanText, "Day 1:\nBreakfast: "))
	assert.Contains(t, res.Msg.PlanText, "\n\nDay 7:\n")
	assert.Equal(t, diet.RenderText(a.Result.WeeklyPlan), res.Msg.PlanText)
}

func TestAnalyzeDocument_ManualText(t *testing.T) {
	ts := newTestServer(t, nil)

	res, err := ts.analyze.CallUnary(context.Background(), connect.NewRequest(&AnalyzeDocumentRequest{
		ManualText: "Diagnosis: type 2 diabetes and high cholesterol.",
	}))
	require.NoError(t, err)
	assert.Equal(t, diet.GroupBoth, res.Msg.Analysis.MenuGroup)
	assert.Equal(t, diet.DefaultPreference, res.Msg.Analysis.Preference)
	assert.Equal(t, pipeline.FormatManual, res.Msg.Analysis.Format)
}

func TestAnalyzeDocument_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		req  *AnalyzeDocumentRequest
		code connect.Code
		msg  string
	}{
		{"empty request", &AnalyzeDocumentRequest{}, connect.CodeInvalidArgument, "INVALID_DOCUMENT"},
		{"unsupported format", &AnalyzeDocumentRequest{Filename: "scan.docx", DocumentData: []byte("x")}, connect.CodeInvalidArgument, "UNSUPPORTED_FORMAT"},
		{"corrupt pdf", &AnalyzeDocumentRequest{Filename: "r.pdf", DocumentData: []byte("not a pdf")}, connect.CodeInvalidArgument, "CORRUPT_DOCUMENT"},
		{"bad encoding", &AnalyzeDocumentRequest{Filename: "r.txt", DocumentData: []byte{0xff, 0xfe, 0x00}}, connect.CodeInvalidArgument, "ENCODING_ERROR"},
		{"unknown preference", &AnalyzeDocumentRequest{ManualText: "diabetes", DietaryPreference: "carnivore"}, connect.CodeInvalidArgument, "preference"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.analyze.CallUnary(context.Background(), connect.NewRequest(tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestAnalyzeDocument_WireFormat(t *testing.T) {
	ts := newTestServer(t, nil)

	body := fmt.Sprintf(`{"filename":"report.csv","document_data":%q,"dietary_preference":"Non-Vegetarian"}`,
		base64.StdEncoding.EncodeToString([]byte(scenarioCSV)))
	resp, err := http.Post(ts.url+AnalyzeDocumentProcedure, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Analysis struct {
			Result map[string]json.RawMessage `json:"result"`
		} `json:"analysis"`
		PlanText string `json:"plan_text"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.JSONEq(t, `"Abnormal"`, string(out.Analysis.Result["risk_label"]))
	assert.Len(t, out.Analysis.Result, 7)
	assert.NotEmpty(t, out.PlanText)
}

func TestAnalyzeDocument_WireError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.url+AnalyzeDocumentProcedure, "application/json", strings.NewReader(`{"manual_text":"  "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "invalid_argument", out.Code)
	assert.Contains(t, out.Message, "INVALID_DOCUMENT")
}

func TestListAnalysisEvents(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ts.analyze.CallUnary(ctx, connect.NewRequest(&AnalyzeDocumentRequest{
			Filename:     "report.csv",
			DocumentData: []byte(scenarioCSV),
		}))
		require.NoError(t, err)
	}

	res, err := ts.list.CallUnary(ctx, connect.NewRequest(&ListAnalysisEventsRequest{Limit: 2}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Events, 2)
	require.NotEmpty(t, res.Msg.NextPageToken)
	e := res.Msg.Events[0]
	assert.Equal(t, "report.csv", e.DocumentName)
	assert.Equal(t, "Cholesterol", e.MenuGroup)
	assert.Equal(t, []string{"High Cholesterol", "Hypertension"}, e.Conditions)

	res, err = ts.list.CallUnary(ctx, connect.NewRequest(&ListAnalysisEventsRequest{Limit: 2, PageToken: res.Msg.NextPageToken}))
	require.NoError(t, err)
	assert.Len(t, res.Msg.Events, 1)
	assert.Empty(t, res.Msg.NextPageToken)
}

func TestListAnalysisEvents_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestServer(t, store.NewMemoryStore()).list.CallUnary(ctx,
		connect.NewRequest(&ListAnalysisEventsRequest{PageToken: "%%%"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = newTestServer(t, store.NewMemoryStore()).list.CallUnary(ctx,
		connect.NewRequest(&ListAnalysisEventsRequest{Limit: -1}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = newTestServer(t, nil).list.CallUnary(ctx, connect.NewRequest(&ListAnalysisEventsRequest{}))
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestListAnalysisEvents_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	events := store.NewMockStore(ctrl)
	events.EXPECT().
		ListAnalysisEvents(gomock.Any(), gomock.Any(), int32(10), "").
		Return(nil, "", errors.New("firestore: deadline exceeded"))

	p, err := pipeline.New()
	require.NoError(t, err)
	svc := NewDietPlannerService(p, events, nil)

	_, err = svc.ListAnalysisEvents(context.Background(), connect.NewRequest(&ListAnalysisEventsRequest{Limit: 10}))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
	assert.NotContains(t, err.Error(), "firestore")
}

func TestGetAnalysisEvent(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())
	ctx := context.Background()

	res, err := ts.analyze.CallUnary(ctx, connect.NewRequest(&AnalyzeDocumentRequest{
		Filename:     "report.csv",
		DocumentData: []byte(scenarioCSV),
	}))
	require.NoError(t, err)
	id := res.Msg.Analysis.ID
	require.NotEmpty(t, id)

	got, err := ts.get.CallUnary(ctx, connect.NewRequest(&GetAnalysisEventRequest{ID: id}))
	require.NoError(t, err)
	assert.Equal(t, id, got.Msg.Event.ID)
	assert.Equal(t, "report.csv", got.Msg.Event.DocumentName)
	assert.Equal(t, "Cholesterol", got.Msg.Event.MenuGroup)

	tests := []struct {
		name string
		ts   *testServer
		id   string
		code connect.Code
	}{
		{"unknown id", ts, "does-not-exist", connect.CodeNotFound},
		{"empty id", ts, "", connect.CodeInvalidArgument},
		{"no store", newTestServer(t, nil), id, connect.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ts.get.CallUnary(ctx, connect.NewRequest(&GetAnalysisEventRequest{ID: tt.id}))
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestGetAnalysisEvent_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	events := store.NewMockStore(ctrl)
	events.EXPECT().
		GetAnalysisEvent(gomock.Any(), "evt-1").
		Return(nil, errors.New("sqlite: database is locked"))

	svc := NewDietPlannerService(nil, events, nil)
	_, err := svc.GetAnalysisEvent(context.Background(), connect.NewRequest(&GetAnalysisEventRequest{ID: "evt-1"}))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
	assert.NotContains(t, err.Error(), "sqlite")
}

func TestMapAnalysisError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"unsupported", &extraction.ExtractionError{Code: extraction.ErrUnsupportedFormat}, connect.CodeInvalidArgument},
		{"corrupt", &extraction.ExtractionError{Code: extraction.ErrCorruptDocument}, connect.CodeInvalidArgument},
		{"encoding", &extraction.ExtractionError{Code: extraction.ErrEncoding}, connect.CodeInvalidArgument},
		{"invalid", extraction.InvalidDocument("empty"), connect.CodeInvalidArgument},
		{"wrapped", fmt.Errorf("extract: %w", extraction.InvalidDocument("empty")), connect.CodeInvalidArgument},
		{"ocr is not fatal", &extraction.ExtractionError{Code: extraction.ErrOCRUnavailable}, connect.CodeInternal},
		{"preference", fmt.Errorf("%w: %q", diet.ErrUnknownPreference, "x"), connect.CodeInvalidArgument},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), connect.CodeDeadlineExceeded},
		{"canceled", context.Canceled, connect.CodeCanceled},
		{"other", errors.New("boom"), connect.CodeInternal},
	}
	svc := NewDietPlannerService(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.mapAnalysisError(tt.err).Code())
		})
	}
}

func TestMapAnalysisError_HidesInternalDetail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewDietPlannerService(nil, nil, zap.New(core))

	err := svc.mapAnalysisError(errors.New("open /var/lib/dietplanner/model.json: permission denied"))
	assert.Equal(t, connect.CodeInternal, err.Code())
	assert.Equal(t, "analysis failed", err.Message())

	entries := logs.FilterMessage("analysis failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "permission denied")
}

func TestTimeoutInterceptor(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	next := func(ctx context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		deadline, hasDeadline = ctx.Deadline()
		return nil, nil
	}

	_, err := TimeoutInterceptor(time.Minute)(next)(context.Background(), connect.NewRequest(&struct{}{}))
	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	_, err = TimeoutInterceptor(0)(next)(context.Background(), connect.NewRequest(&struct{}{}))
	require.NoError(t, err)
	assert.False(t, hasDeadline)
}

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	interceptor := LoggingInterceptor(zap.New(core))

	ok := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) { return nil, nil }
	rejected := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bad"))
	}
	failed := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeInternal, errors.New("boom"))
	}

	for _, next := range []connect.UnaryFunc{ok, rejected, failed} {
		_, _ = interceptor(next)(context.Background(), connect.NewRequest(&struct{}{}))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "rpc handled", entries[0].Message)
	assert.Equal(t, "rpc rejected", entries[1].Message)
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
	assert.Equal(t, "rpc failed", entries[2].Message)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "invalid_argument", entries[1].ContextMap()["code"])
}
