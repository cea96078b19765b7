package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemDerivesTypeFromStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:          TypeInvalidRequest,
		http.StatusNotFound:            TypeNotFound,
		http.StatusConflict:            TypeConflict,
		http.StatusUnprocessableEntity: TypeUnprocessable,
		http.StatusServiceUnavailable:  TypeUnavailable,
		http.StatusInternalServerError: TypeInternal,
	}
	for status, want := range cases {
		rec := httptest.NewRecorder()
		Problem(rec, status, "title", "detail")

		require.Equal(t, status, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var pd ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
		require.Equal(t, want, pd.Type)
		require.Equal(t, status, pd.Status)
		require.Equal(t, "title", pd.Title)
	}
}
