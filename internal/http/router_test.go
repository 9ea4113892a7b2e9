package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"logbook/internal/cache"
	intconfig "logbook/internal/config"
	"logbook/internal/domain/models"
	h "logbook/internal/http/handlers"
	"logbook/internal/repositories"
	"logbook/internal/services"
	"logbook/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine *gin.Engine
	api    *h.API
	root   string
}

func newTestServer(t *testing.T, capacity int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	st := store.OpenTestStore(t, store.Options{Logger: logger})
	c := cache.New(cache.NewMemoryArea(0), logger)
	f := repositories.NewFacade(st, c, repositories.DefaultPolicy(), logger)
	require.NoError(t, f.Refresh(ctx))

	loc := time.FixedZone("VET", -4*3600)
	groups := services.NewGroupRegistry(c, loc, logger)
	a := &h.API{
		Facade:    f,
		Lifecycle: services.NewTripLifecycle(f, groups, capacity, logger),
		Groups:    groups,
		Loc:       loc,
		Secret:    []byte("router-test"),
		TokenTTL:  time.Hour,
		Log:       logger,
	}
	auth := services.AuthService{
		Users:       repositories.NewUserRepository(f),
		Credentials: repositories.NewCredentialRepository(f),
		Conductors:  repositories.NewConductorRepository(f),
		Secret:      a.Secret,
	}
	_, err := auth.EnsureRoot(ctx, "root", "rootpass")
	require.NoError(t, err)

	srv := &testServer{engine: NewRouter(intconfig.Env{}, a, logger), api: a}
	srv.root = srv.login(t, "root", "rootpass")
	return srv
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Token
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) seed(t *testing.T, cedulas ...string) (models.Conductor, []models.Passenger) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/conductors", s.root, gin.H{"name": "Carlos", "cedula": "C1", "route": "R"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	conductor := decodeBody[models.Conductor](t, w)

	var passengers []models.Passenger
	for _, cedula := range cedulas {
		w := s.do(t, http.MethodPost, "/api/passengers", s.root, gin.H{"name": "P " + cedula, "cedula": cedula, "department": "Ops"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		passengers = append(passengers, decodeBody[models.Passenger](t, w))
	}
	return conductor, passengers
}

func TestHealthIsPublicAndTagged(t *testing.T) {
	s := newTestServer(t, 0)
	w := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/api/passengers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "root", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTripFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, 0)
	conductor, passengers := s.seed(t, "1", "2")

	w := s.do(t, http.MethodPost, "/api/trips/start", s.root, gin.H{"passengerId": passengers[0].ID, "conductorId": conductor.ID})
	assert.Equal(t, http.StatusConflict, w.Code, "shift must be chosen first")
	assert.Equal(t, "invalid_state", decodeBody[h.ErrorResponse](t, w).Code)

	for _, p := range passengers {
		w = s.do(t, http.MethodPost, "/api/trips/start", s.root, gin.H{"passengerId": p.ID, "conductorId": conductor.ID, "shift": "mañana"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "R", decodeBody[models.Trip](t, w).Route)
	}

	w = s.do(t, http.MethodGet, "/api/groups/current?conductorId="+conductor.ID+"&route=R&shift=manana", s.root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	group := decodeBody[map[string]any](t, w)
	assert.EqualValues(t, 2, group["active"])
	assert.EqualValues(t, 18, group["capacity"])

	w = s.do(t, http.MethodPost, "/api/trips/finalize-route", s.root, gin.H{"route": "R"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decodeBody[map[string]any](t, w)["finalized"])

	w = s.do(t, http.MethodGet, "/api/trips?status=active", s.root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[[]models.Trip](t, w))

	w = s.do(t, http.MethodGet, "/api/reports/manifest?route=R", s.root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestCapacityAndDuplicateMapToConflict(t *testing.T) {
	s := newTestServer(t, 1)
	conductor, passengers := s.seed(t, "1", "2")

	w := s.do(t, http.MethodPost, "/api/trips/start", s.root, gin.H{"passengerId": passengers[0].ID, "conductorId": conductor.ID, "shift": "noche"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/api/trips/start", s.root, gin.H{"passengerId": passengers[1].ID, "conductorId": conductor.ID, "shift": "noche"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "capacity_exceeded", decodeBody[h.ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/passengers", s.root, gin.H{"name": "Again", "cedula": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_key", decodeBody[h.ErrorResponse](t, w).Code)
}

func TestConductorLoginIsScoped(t *testing.T) {
	s := newTestServer(t, 0)
	conductor, passengers := s.seed(t, "7")

	w := s.do(t, http.MethodPost, "/api/conductor-credentials", s.root, gin.H{"conductorId": conductor.ID, "username": "carlos", "password": "bus-123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "passwordHash")

	token := s.login(t, "carlos", "bus-123")
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/users", token, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/passengers", token, gin.H{"name": "X", "cedula": "9"}).Code)

	w = s.do(t, http.MethodGet, "/api/passengers/"+passengers[0].ID+"/identity", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody[map[string]string](t, w)["payload"]

	w = s.do(t, http.MethodPost, "/api/trips/identify", token, gin.H{"payload": payload, "conductorId": "someone-else", "shift": "mañana"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decodeBody[services.IdentifyResult](t, w)
	assert.Equal(t, services.IdentifyStarted, res.Action)
	assert.Equal(t, conductor.ID, res.Trip.ConductorID)

	w = s.do(t, http.MethodPost, "/api/trips/identify", token, gin.H{"payload": payload, "shift": "mañana"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.IdentifyFinalized, decodeBody[services.IdentifyResult](t, w).Action)

	w = s.do(t, http.MethodPost, "/api/trips/identify", token, gin.H{"payload": "%%%", "shift": "mañana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportCSVUpload(t *testing.T) {
	s := newTestServer(t, 0)
	s.seed(t, "1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("nombre,cedula,departamento\nAna,1,Ops\nBeto,2,Ops\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/passengers/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.root)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decodeBody[services.ImportReport](t, w)
	assert.Equal(t, 1, report.Imported)
	assert.Len(t, report.Skipped, 1)
}

func TestUnreadableRecordIsInternalError(t *testing.T) {
	s := newTestServer(t, 0)
	bad := store.Document(`{"id":"broken","name":42,"cedula":"X-1"}`)
	require.NoError(t, s.api.Facade.Put(context.Background(), store.Passengers, bad))

	w := s.do(t, http.MethodGet, "/api/passengers", s.root, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeBody[h.ErrorResponse](t, w)
	assert.Equal(t, "internal_error", resp.Code)
	assert.Equal(t, "stored passengers record broken is unreadable", resp.Error)
	assert.NotContains(t, resp.Error, "unmarshal")
	assert.NotEmpty(t, resp.RequestID)
}

func TestBodyErrorsUseErrorResponse(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodPost, "/api/passengers", s.root, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[h.ErrorResponse](t, w)
	assert.Equal(t, "empty_body", resp.Code)
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)

	w = s.do(t, http.MethodPost, "/api/passengers", s.root, "not an object")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decodeBody[h.ErrorResponse](t, w).Code)
}
