package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	unreadFn      func(ctx context.Context, userID uuid.UUID) (int64, error)
	markReadFn    func(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	deleteFn      func(ctx context.Context, userID, notificationID uuid.UUID) error
	prefsFn       func(ctx context.Context, userID uuid.UUID) ([]notifications.PreferenceDTO, error)
	updatePrefsFn func(ctx context.Context, userID uuid.UUID, updates []notifications.PreferenceUpdate) ([]notifications.PreferenceDTO, error)
	cleanupFn     func(ctx context.Context) (int64, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, ids)
	}
	return 0, nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) Preferences(ctx context.Context, userID uuid.UUID) ([]notifications.PreferenceDTO, error) {
	if s.prefsFn != nil {
		return s.prefsFn(ctx, userID)
	}
	return nil, nil
}

func (s *testNotificationsService) UpdatePreferences(ctx context.Context, userID uuid.UUID, updates []notifications.PreferenceUpdate) ([]notifications.PreferenceDTO, error) {
	if s.updatePrefsFn != nil {
		return s.updatePrefsFn(ctx, userID, updates)
	}
	return nil, nil
}

func (s *testNotificationsService) CleanupExpired(ctx context.Context) (int64, error) {
	if s.cleanupFn != nil {
		return s.cleanupFn(ctx)
	}
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestListNotificationsPassesQuery(t *testing.T) {
	userID := uuid.New()
	var captured notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			captured = params
			return &notifications.ListResult{Total: 3, Unread: 1, Page: 2, Limit: 50, Pages: 1}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/notifications?page=-3&limit=500&includeRead=false", "", userID)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if captured.UserID != userID || captured.Page != -3 || captured.Limit != 500 || captured.IncludeRead {
		t.Fatalf("unexpected params %+v", captured)
	}
	var result notifications.ListResult
	decodeData(t, resp, &result)
	if result.Unread != 1 || result.Total != 3 {
		t.Fatalf("unexpected body %+v", result)
	}
}

func TestListNotificationsDefaultsIncludeRead(t *testing.T) {
	var captured notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			captured = params
			return &notifications.ListResult{}, nil
		},
	}
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/notifications", "", uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !captured.IncludeRead || captured.Page != 1 || captured.Limit != 0 {
		t.Fatalf("unexpected defaults %+v", captured)
	}
}

func TestListNotificationsRejectsBadQuery(t *testing.T) {
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/notifications?page=abc", "", uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListNotificationsRequiresUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestUnreadNotificationCount(t *testing.T) {
	svc := &testNotificationsService{
		unreadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 4, nil },
	}
	resp := httptest.NewRecorder()
	UnreadNotificationCount(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/notifications/unread-count", "", uuid.New()))

	var body map[string]int64
	decodeData(t, resp, &body)
	if body["unreadCount"] != 4 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMarkNotificationsReadByIDs(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	var captured []uuid.UUID
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
			captured = ids
			return 2, nil
		},
		markAllReadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) {
			t.Fatal("mark all should not be called")
			return 0, nil
		},
	}
	body := `{"ids":["` + first.String() + `","` + second.String() + `"]}`
	resp := httptest.NewRecorder()
	MarkNotificationsRead(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/notifications/read", body, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(captured) != 2 || captured[0] != first || captured[1] != second {
		t.Fatalf("unexpected ids %v", captured)
	}
	var out map[string]int64
	decodeData(t, resp, &out)
	if out["markedCount"] != 2 {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestMarkNotificationsReadAll(t *testing.T) {
	called := false
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) {
			called = true
			return 7, nil
		},
	}
	resp := httptest.NewRecorder()
	MarkNotificationsRead(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/notifications/read", `{"all":true}`, uuid.New()))
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected mark all, got %d", resp.Code)
	}
}

func TestMarkNotificationsReadValidation(t *testing.T) {
	cases := map[string]string{
		"empty":   `{}`,
		"bad id":  `{"ids":["nope"]}`,
		"unknown": `{"ids":[],"extra":true}`,
	}
	for name, body := range cases {
		resp := httptest.NewRecorder()
		MarkNotificationsRead(&testNotificationsService{}, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/notifications/read", body, uuid.New()))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
	}
}

func TestMarkNotificationReadSingle(t *testing.T) {
	notificationID := uuid.New()
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
			if len(ids) != 1 || ids[0] != notificationID {
				t.Fatalf("unexpected ids %v", ids)
			}
			return 0, nil
		},
	}
	req := withURLParam(authedRequest(http.MethodPut, "/api/v1/notifications/x/read", "", uuid.New()), "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var out map[string]int64
	decodeData(t, resp, &out)
	if out["markedCount"] != 0 {
		t.Fatalf("already-read notification should report 0, got %v", out)
	}
}

func TestDeleteNotification(t *testing.T) {
	notificationID := uuid.New()
	svc := &testNotificationsService{
		deleteFn: func(ctx context.Context, userID, id uuid.UUID) error {
			if id != notificationID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
			}
			return nil
		},
	}

	req := withURLParam(authedRequest(http.MethodDelete, "/", "", uuid.New()), "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	DeleteNotification(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}

	req = withURLParam(authedRequest(http.MethodDelete, "/", "", uuid.New()), "notificationId", uuid.NewString())
	resp = httptest.NewRecorder()
	DeleteNotification(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	req = withURLParam(authedRequest(http.MethodDelete, "/", "", uuid.New()), "notificationId", "bogus")
	resp = httptest.NewRecorder()
	DeleteNotification(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdateNotificationPreferences(t *testing.T) {
	var captured []notifications.PreferenceUpdate
	svc := &testNotificationsService{
		updatePrefsFn: func(ctx context.Context, userID uuid.UUID, updates []notifications.PreferenceUpdate) ([]notifications.PreferenceDTO, error) {
			captured = updates
			return []notifications.PreferenceDTO{{Type: "reward", Enabled: false}}, nil
		},
	}
	body := `{"preferences":[{"type":"reward","enabled":false},{"type":"points","enabled":true}]}`
	resp := httptest.NewRecorder()
	UpdateNotificationPreferences(svc, testLogger())(resp, authedRequest(http.MethodPut, "/api/v1/notifications/preferences", body, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(captured) != 2 || captured[0].Type != "reward" || captured[0].Enabled || !captured[1].Enabled {
		t.Fatalf("unexpected updates %+v", captured)
	}
}

func TestUpdateNotificationPreferencesRequiresEnabled(t *testing.T) {
	resp := httptest.NewRecorder()
	UpdateNotificationPreferences(&testNotificationsService{}, testLogger())(resp, authedRequest(http.MethodPut, "/", `{"preferences":[{"type":"reward"}]}`, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetNotificationPreferences(t *testing.T) {
	svc := &testNotificationsService{
		prefsFn: func(ctx context.Context, userID uuid.UUID) ([]notifications.PreferenceDTO, error) {
			return []notifications.PreferenceDTO{{Type: "coupon", Enabled: true}}, nil
		},
	}
	resp := httptest.NewRecorder()
	GetNotificationPreferences(svc, testLogger())(resp, authedRequest(http.MethodGet, "/", "", uuid.New()))

	var out struct {
		Preferences []notifications.PreferenceDTO `json:"preferences"`
	}
	decodeData(t, resp, &out)
	if len(out.Preferences) != 1 || out.Preferences[0].Type != "coupon" {
		t.Fatalf("unexpected body %+v", out)
	}
}
