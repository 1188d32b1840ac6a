package orders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-store/meridian/internal/catalog"
	"github.com/meridian-store/meridian/internal/stock"
)

func TestRespondErrorItemPayloads(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	t.Run("variant not found names the failing line", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := &ItemError{Index: 2, ProductID: 7, VariantID: 70, Err: catalog.ErrVariantNotFound}
		h.respondError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decode(t, rec)
		require.EqualValues(t, 2, body["item_index"])
		require.EqualValues(t, 7, body["product_id"])
		require.EqualValues(t, 70, body["variant_id"])
	})

	t.Run("unknown variant from the apply phase maps the same way", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := &ItemError{Index: 0, ProductID: 3, VariantID: 30, Err: stock.ErrVariantNotFound}
		h.respondError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decode(t, rec)
		require.EqualValues(t, 0, body["item_index"])
		require.EqualValues(t, 30, body["variant_id"])
	})

	t.Run("insufficient stock carries the shortfall", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := &ItemError{Index: 1, ProductID: 2, VariantID: 20,
			Err: &stock.InsufficientStockError{Available: 3, Requested: 5}}
		h.respondError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decode(t, rec)
		require.EqualValues(t, 1, body["item_index"])
		require.EqualValues(t, 3, body["available"])
		require.EqualValues(t, 5, body["requested"])
	})
}
