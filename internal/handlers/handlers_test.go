package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"
	"van-dispatch/internal/repository"
	"van-dispatch/internal/routing"
	"van-dispatch/internal/services"

	"github.com/google/uuid"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	repo    *repository.Memory
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewDiscard()
	repo := repository.NewMemory()

	gen := services.NewRouteGenerationService(repo, routing.DefaultOptions(),
		config.GenerationConfig{LockTTL: 30, MaxDaysAhead: 14}, nil, nil, nil, log)
	schedules := services.NewScheduleService(repo, nil, nil, log)
	vans := services.NewVanService(repo, log)
	requests := services.NewServiceRequestService(repo, log)

	vh := NewVanHandler(gen, schedules, vans, log)
	rh := NewServiceRequestHandler(requests, log)
	hh := NewHealthHandler(repo, nil, false)

	mux := http.NewServeMux()
	mux.HandleFunc("/vans", vh.Collection)
	mux.HandleFunc("/vans/", vh.Route)
	mux.HandleFunc("/service-requests", rh.Collection)
	mux.HandleFunc("/service-requests/", rh.Cancel)
	mux.HandleFunc("/health", hh.Health)
	mux.HandleFunc("/health/readiness", hh.Readiness)
	mux.HandleFunc("/health/liveness", hh.Liveness)

	return &testServer{repo: repo, handler: mux}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v (%s)", method, path, err, rr.Body.String())
	}
	return rr, env
}

func (s *testServer) seed(t *testing.T) models.Van {
	t.Helper()
	rr, env := s.do(t, http.MethodPost, "/vans", `{"van_number":"VAN-01","van_name":"North","depot_lat":50.0,"depot_lon":14.0}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create van: %d %s", rr.Code, env.Message)
	}
	var van models.Van
	if err := json.Unmarshal(env.Data, &van); err != nil {
		t.Fatalf("decode van: %v", err)
	}
	for _, body := range []string{
		`{"customer_name":"Eva","lat":50.01,"lon":14.0,"tier":"eternal","preferred_date":"2024-05-30"}`,
		`{"customer_name":"Jan","lat":50.02,"lon":14.01,"tier":"basic","preferred_date":"2024-06-01"}`,
		`{"customer_name":"Ota","lat":50.03,"lon":14.0,"tier":"plus","preferred_date":"2024-06-02"}`,
	} {
		if rr, env := s.do(t, http.MethodPost, "/service-requests", body); rr.Code != http.StatusCreated {
			t.Fatalf("create request: %d %s", rr.Code, env.Message)
		}
	}
	return van
}

func TestGenerateWeeklyRoutesEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	rr, env := s.do(t, http.MethodPost, "/vans/generate-weekly-routes", `{"start_date":"2024-06-01","days_ahead":"7"}`)
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("generate: %d %s", rr.Code, env.Message)
	}

	var result models.GenerateWeeklyRoutesResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.RoutesByDay) != 7 {
		t.Fatalf("expected 7 days, got %d", len(result.RoutesByDay))
	}
	if result.RoutesByDay[0].Date != "2024-06-01" || result.RoutesByDay[6].Date != "2024-06-07" {
		t.Fatalf("unexpected range %s..%s", result.RoutesByDay[0].Date, result.RoutesByDay[6].Date)
	}
	if result.TotalRequestsAssigned != 3 {
		t.Fatalf("expected 3 assigned, got %d", result.TotalRequestsAssigned)
	}

	sum := 0
	for _, d := range result.RoutesByDay {
		got := 0
		for _, r := range d.Routes {
			got += len(r.Assignments)
		}
		if got != d.RequestsAssigned {
			t.Fatalf("%s: requestsAssigned %d, assignments %d", d.Date, d.RequestsAssigned, got)
		}
		sum += got
	}
	if sum != result.TotalRequestsAssigned {
		t.Fatalf("total mismatch: %d vs %d", sum, result.TotalRequestsAssigned)
	}
}

func TestGenerateWeeklyRoutesEndpointErrors(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodPost, `{"start_date":"2024-06-01","days_ahead":0}`, http.StatusBadRequest},
		{http.MethodPost, `{"start_date":"2024-06-01","days_ahead":15}`, http.StatusBadRequest},
		{http.MethodPost, `{"start_date":"01.06.2024","days_ahead":7}`, http.StatusBadRequest},
		{http.MethodPost, `{"start_date":"2024-06-01","days_ahead":"seven"}`, http.StatusBadRequest},
		{http.MethodPost, `not json`, http.StatusBadRequest},
		{http.MethodGet, "", http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		rr, env := s.do(t, c.method, "/vans/generate-weekly-routes", c.body)
		if rr.Code != c.want {
			t.Fatalf("%s %s: got %d, want %d", c.method, c.body, rr.Code, c.want)
		}
		if env.Success || env.Message == "" {
			t.Fatalf("%s: expected error envelope, got %+v", c.body, env)
		}
	}
}

func TestVansAndAssignmentsEndpoints(t *testing.T) {
	s := newTestServer(t)
	van := s.seed(t)

	if rr, env := s.do(t, http.MethodPost, "/vans/generate-weekly-routes", `{"start_date":"2024-06-02","days_ahead":1}`); rr.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", rr.Code, env.Message)
	}

	rr, env := s.do(t, http.MethodGet, "/vans?date=2024-06-02", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("vans: %d %s", rr.Code, env.Message)
	}
	var vansData struct {
		Vans []models.Van `json:"vans"`
	}
	if err := json.Unmarshal(env.Data, &vansData); err != nil {
		t.Fatalf("decode vans: %v", err)
	}
	if len(vansData.Vans) != 1 || vansData.Vans[0].ID != van.ID || vansData.Vans[0].ScheduleID == nil {
		t.Fatalf("unexpected vans: %+v", vansData.Vans)
	}
	if *vansData.Vans[0].AssignmentCount != 3 {
		t.Fatalf("assignment count: %d", *vansData.Vans[0].AssignmentCount)
	}
	scheduleID := *vansData.Vans[0].ScheduleID

	rr, env = s.do(t, http.MethodGet, "/vans/schedules/"+scheduleID.String()+"/assignments", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("assignments: %d %s", rr.Code, env.Message)
	}
	var aData struct {
		Assignments []models.RouteAssignment `json:"assignments"`
	}
	if err := json.Unmarshal(env.Data, &aData); err != nil {
		t.Fatalf("decode assignments: %v", err)
	}
	if len(aData.Assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(aData.Assignments))
	}
	for i, a := range aData.Assignments {
		if a.RouteSequence != i+1 {
			t.Fatalf("position %d has sequence %d", i, a.RouteSequence)
		}
	}

	if rr, _ := s.do(t, http.MethodGet, "/vans/schedules/"+uuid.New().String()+"/assignments", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown schedule: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodGet, "/vans/schedules/not-a-uuid/assignments", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad schedule id: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodGet, "/vans?date=June", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rr.Code)
	}

	path := "/vans/schedules/" + scheduleID.String() + "/status"
	if rr, _ := s.do(t, http.MethodPut, path, `{"status":"completed"}`); rr.Code != http.StatusConflict {
		t.Fatalf("planned -> completed: %d", rr.Code)
	}
	if rr, env := s.do(t, http.MethodPut, path, `{"status":"in_progress"}`); rr.Code != http.StatusOK {
		t.Fatalf("planned -> in_progress: %d %s", rr.Code, env.Message)
	}
}

func TestVanStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	van := s.seed(t)

	rr, env := s.do(t, http.MethodPut, "/vans/"+van.ID.String()+"/status", `{"status":"maintenance"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rr.Code, env.Message)
	}
	if rr, _ := s.do(t, http.MethodPut, "/vans/"+van.ID.String()+"/status", `{"status":"flying"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodPost, "/vans", `{"van_number":"VAN-01"}`); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate van: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodGet, "/vans/unknown", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rr.Code)
	}

	rr, env = s.do(t, http.MethodGet, "/vans", "")
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("list vans: %d", rr.Code)
	}
}

func TestServiceRequestEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	rr, env := s.do(t, http.MethodGet, "/service-requests?status=pending", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rr.Code, env.Message)
	}
	var data struct {
		Requests []models.ServiceRequest `json:"service_requests"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(data.Requests))
	}

	if rr, _ := s.do(t, http.MethodDelete, "/service-requests/"+data.Requests[0].ID.String(), ""); rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodDelete, "/service-requests/"+uuid.New().String(), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown: %d", rr.Code)
	}
	if rr, _ := s.do(t, http.MethodPost, "/service-requests", `{"lat":50,"lon":14}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing name: %d", rr.Code)
	}
}

type failingStorage struct{}

func (failingStorage) Health(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/health/readiness", "/health/liveness"} {
		rr, env := s.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK || !env.Success {
			t.Fatalf("%s: %d", path, rr.Code)
		}
	}

	h := NewHealthHandler(failingStorage{}, nil, true)
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy storage: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness: %d", rr.Code)
	}
}

func TestExtractUUIDFromPath(t *testing.T) {
	id := uuid.New()
	got, err := extractUUIDFromPath("/vans/schedules/"+id.String()+"/assignments", schedulesPrefix)
	if err != nil || got != id {
		t.Fatalf("got %s, %v", got, err)
	}
	if _, err := extractUUIDFromPath("/vans/schedules//assignments", schedulesPrefix); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := extractUUIDFromPath("/orders/"+id.String(), schedulesPrefix); err == nil {
		t.Fatal("expected error for wrong prefix")
	}
}
