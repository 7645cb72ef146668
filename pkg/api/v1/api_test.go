package apiv1

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/profiles"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupervisor struct {
	mu         sync.Mutex
	mounted    []types.MountConfig
	mountErr   error
	unmountErr error
	unmounts   int
	status     mount.Status
}

func (f *fakeSupervisor) RequestMount(_ context.Context, cfg types.MountConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mountErr != nil {
		return f.mountErr
	}
	f.mounted = append(f.mounted, cfg)
	f.status = mount.Status{State: mount.CreatingRemote, Profile: cfg.ProfileName}
	return nil
}

func (f *fakeSupervisor) RequestUnmount(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmounts++
	return f.unmountErr
}

func (f *fakeSupervisor) Status() mount.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type fakeLister struct {
	names []string
	err   error
	got   types.Credentials
}

func (f *fakeLister) ListBuckets(_ context.Context, creds types.Credentials) ([]string, error) {
	f.got = creds
	return f.names, f.err
}

type fakeProber struct {
	version string
	err     error
}

func (f *fakeProber) Probe(context.Context) (string, error) { return f.version, f.err }

type testAPI struct {
	e          *echo.Echo
	supervisor *fakeSupervisor
	store      *profiles.Store
	lister     *fakeLister
	bus        *common.EventBus
}

func newTestAPI(t *testing.T, token string) *testAPI {
	store, err := profiles.NewStore(filepath.Join(t.TempDir(), "profiles.yaml"))
	require.NoError(t, err)

	api := &testAPI{
		e:          echo.New(),
		supervisor: &fakeSupervisor{status: mount.Status{State: mount.Idle}},
		store:      store,
		lister:     &fakeLister{names: []string{"alpha", "beta"}},
		bus:        common.NewEventBus(context.Background(), nil, ""),
	}

	api.e.Pre(middleware.RemoveTrailingSlash())
	base := api.e.Group(HttpServerBaseRoute)
	NewHealthGroup(base.Group("/health"), nil, &fakeProber{version: "rclone v1.66.0"})

	authed := base.Group("", NewAuthMiddleware(token))
	NewMountGroup(authed, api.supervisor, store)
	NewBucketsGroup(authed.Group("/buckets"), api.lister, store)
	NewProfilesGroup(authed.Group("/profiles"), store)
	NewEventsGroup(authed.Group("/events"), api.bus)
	return api
}

func (a *testAPI) do(method, path, body string, headers ...string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func testProfile(name string) types.MountConfig {
	return types.MountConfig{
		ProfileName: name,
		Endpoint:    "https://s3.example.com",
		AccessKey:   "AKIA",
		SecretKey:   "secret",
		BucketName:  "photos",
		MountPoint:  "/mnt/" + name,
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, "")

	rec, _ := api.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rclone v1.66.0")
}

func TestHealth_ProbeFailure(t *testing.T) {
	e := echo.New()
	NewHealthGroup(e.Group("/health"), nil, &fakeProber{err: errors.New("rclone not found")})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ok")
}

func TestStatus(t *testing.T) {
	api := newTestAPI(t, "")

	rec, resp := api.do(http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)
}

func TestMount_ByProfile(t *testing.T) {
	api := newTestAPI(t, "")
	require.NoError(t, api.store.Put(testProfile("work")))

	rec, resp := api.do(http.MethodPost, "/api/v1/mount", `{"profile":"work"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)
	require.Len(t, api.supervisor.mounted, 1)
	assert.Equal(t, testProfile("work"), api.supervisor.mounted[0])
}

func TestMount_InlineConfig(t *testing.T) {
	api := newTestAPI(t, "")
	body := `{"config":{"profile_name":"adhoc","endpoint":"https://s3.example.com","access_key":"AKIA","secret_key":"s","bucket_name":"b","mount_point":"/mnt/b"}}`

	rec, _ := api.do(http.MethodPost, "/api/v1/mount", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, api.supervisor.mounted, 1)
	assert.Equal(t, "adhoc", api.supervisor.mounted[0].ProfileName)
}

func TestMount_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"missing body fields", `{}`, nil, http.StatusBadRequest},
		{"unknown profile", `{"profile":"nope"}`, nil, http.StatusNotFound},
		{"already active", `{"profile":"work"}`, &types.AlreadyActiveError{State: "mounted"}, http.StatusConflict},
		{"invalid config", `{"profile":"work"}`, &types.ValidationError{Field: "bucket_name", Reason: "required"}, http.StatusBadRequest},
		{"supervisor stopped", `{"profile":"work"}`, mount.ErrStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, "")
			require.NoError(t, api.store.Put(testProfile("work")))
			api.supervisor.mountErr = tt.err

			rec, resp := api.do(http.MethodPost, "/api/v1/mount", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestUnmount(t *testing.T) {
	api := newTestAPI(t, "")

	rec, _ := api.do(http.MethodPost, "/api/v1/unmount", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, api.supervisor.unmounts)

	api.supervisor.unmountErr = &types.NotMountedError{State: "idle"}
	rec, resp := api.do(http.MethodPost, "/api/v1/unmount", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no active mount to unmount", resp.Error)
}

func TestBuckets(t *testing.T) {
	api := newTestAPI(t, "")
	require.NoError(t, api.store.Put(testProfile("work")))

	rec, _ := api.do(http.MethodGet, "/api/v1/buckets?profile=work", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"buckets":["alpha","beta"]`)
	assert.Equal(t, "AKIA", api.lister.got.AccessKey)

	rec, _ = api.do(http.MethodPost, "/api/v1/buckets", `{"endpoint":"https://other","access_key":"K","secret_key":"S"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://other", api.lister.got.Endpoint)

	rec, _ = api.do(http.MethodGet, "/api/v1/buckets", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/v1/buckets?profile=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	api.lister.err = errors.New("list buckets: AccessDenied")
	rec, _ = api.do(http.MethodGet, "/api/v1/buckets?profile=work", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProfiles_CRUD(t *testing.T) {
	api := newTestAPI(t, "")

	body := `{"endpoint":"https://s3.example.com","access_key":"AKIA","secret_key":"topsecret","bucket_name":"photos","mount_point":"/mnt/work"}`
	rec, _ := api.do(http.MethodPut, "/api/v1/profiles/work", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "topsecret")

	rec, _ = api.do(http.MethodGet, "/api/v1/profiles", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"profile_name":"work"`)
	assert.Contains(t, rec.Body.String(), "[REDACTED]")
	assert.NotContains(t, rec.Body.String(), "topsecret")

	stored, err := api.store.Get("work")
	require.NoError(t, err)
	assert.Equal(t, "topsecret", stored.SecretKey)

	rec, _ = api.do(http.MethodGet, "/api/v1/profiles/work/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodDelete, "/api/v1/profiles/work", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/v1/profiles/work", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfiles_Validation(t *testing.T) {
	api := newTestAPI(t, "")

	rec, _ := api.do(http.MethodPut, "/api/v1/profiles/work", `{"profile_name":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := api.do(http.MethodPut, "/api/v1/profiles/work", `{"endpoint":"https://s3.example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "access_key")
}

func TestAuthMiddleware(t *testing.T) {
	api := newTestAPI(t, "s3cr3t")

	rec, _ := api.do(http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer s3cr3t")
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays public
	rec, _ = api.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsStream(t *testing.T) {
	api := newTestAPI(t, "")
	srv := httptest.NewServer(api.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	api.bus.Publish(types.Event{Type: types.EventMountSuccessful, Profile: "work", State: "mounted"})

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	assert.Equal(t, "event: mount-successful\n", eventLine)
	require.True(t, strings.HasPrefix(dataLine, "data: "))

	var e types.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &e))
	assert.Equal(t, "work", e.Profile)
	assert.Equal(t, "mounted", e.State)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.New("boom")))
	assert.Equal(t, http.StatusRequestTimeout, StatusForError(context.DeadlineExceeded))
	assert.Equal(t, http.StatusNotFound, StatusForError(&types.ProfileNotFoundError{Name: "x"}))
}
