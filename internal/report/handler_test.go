package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	gw := newFakeGateway()
	svc := NewService(gw, gw, nil, Config{Workers: 2}, nil)
	require.NoError(t, svc.Refresh(context.Background()))
	h := NewHandler(nil, svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, svc
}

func TestHandlerRunReport(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/report?start=2026-01-01&end=2026-01-31", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var rep Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Rows, 4)
	require.Equal(t, "root", rep.Rows[0].ActorID)
}

func TestHandlerRejectsBadPeriod(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/report?start=January&end=2026-01-31", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid period")
}

func TestHandlerExportStreamsCSV(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/report/export?start=2026-01-01&end=2026-01-31", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "# Report:"))
}

func TestHandlerFeeLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	body := `{"name":"commission","amount":5,"kind":"PCT_CASH_VALUE"}`
	req := httptest.NewRequest(http.MethodPost, "/actors/m-1/fees/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/actors/m-1/fees/", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var fees []feeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fees))
	require.Len(t, fees, 1)

	req = httptest.NewRequest(http.MethodPost, "/actors/m-1/fees/", strings.NewReader(`{"name":"broken","amount":1,"kind":"NOPE"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/actors/m-1/fees/", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerUnknownActor(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/actors/ghost/fees/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
