package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	reportapp "github.com/erp/inventoryreport/internal/application/report"
	"github.com/erp/inventoryreport/internal/domain/inventory"
	"github.com/erp/inventoryreport/internal/infrastructure/cache"
	"github.com/erp/inventoryreport/internal/infrastructure/storage"
	"github.com/erp/inventoryreport/internal/interfaces/http/dto"
	"github.com/erp/inventoryreport/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubItemSource struct {
	items []inventory.RawItem
	err   error
	calls int
}

func (s *stubItemSource) FetchItems(ctx context.Context) ([]inventory.RawItem, error) {
	s.calls++
	return s.items, s.err
}

const widgetJSON = `{"sku":"W-1","name":"Widget","onHand":10,"price":2.5,"costPerUnit":1,"totalUnitsSold":4,"averageDailyUsage":2,"lastSoldAt":"2023-12-30"}`

func testReportSettings(enabled bool) reportapp.Settings {
	return reportapp.Settings{
		Enabled:           enabled,
		Cadence:           "weekly",
		Location:          time.UTC,
		DefaultRecipients: []string{"ops@example.com"},
		Reps:              []reportapp.Rep{{Name: "Avery", Email: "avery@example.com"}},
		KeyPrefix:         "outbox",
	}
}

func setupReportRouter(t *testing.T, settings reportapp.Settings, source ItemSource) (*gin.Engine, *storage.MemoryObjectStorage) {
	t.Helper()
	binding.EnableDecoderUseNumber = true
	middleware.SetupValidator()

	outbox := storage.NewMemoryObjectStorage()
	keys := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = keys.Close() })
	svc := reportapp.NewReportService(settings, outbox, nil).
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }).
		WithIdempotency(keys, time.Hour)
	h := NewInventoryReportHandler(svc, source)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/inventory-reports", h.BuildReport)
	r.POST("/inventory-reports/email", h.FormatEmail)
	r.POST("/inventory-reports/runs", h.RunReport)
	r.POST("/recipients", h.BuildRecipients)
	return r, outbox
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

type reportBody struct {
	AsOfDate string `json:"asOfDate"`
	Items    []struct {
		SKU                  string  `json:"sku"`
		TotalValue           string  `json:"totalValue"`
		ExpectedStockOutDate *string `json:"expectedStockOutDate"`
	} `json:"items"`
}

func TestInventoryReportHandler_BuildReport(t *testing.T) {
	r, _ := setupReportRouter(t, testReportSettings(true), nil)

	t.Run("builds report from inline items", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"as_of_date":"2024-01-01","items":[`+widgetJSON+`]}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var rpt reportBody
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rpt))
		assert.Equal(t, "2024-01-01", rpt.AsOfDate)
		require.Len(t, rpt.Items, 1)
		assert.Equal(t, "W-1", rpt.Items[0].SKU)
		assert.Equal(t, "25", rpt.Items[0].TotalValue)
		require.NotNil(t, rpt.Items[0].ExpectedStockOutDate)
		assert.Equal(t, "2024-01-06", *rpt.Items[0].ExpectedStockOutDate)
	})

	t.Run("defaults as-of date to today", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"items":[]}`)

		require.Equal(t, http.StatusOK, w.Code)
		var rpt reportBody
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rpt))
		assert.Equal(t, "2024-01-01", rpt.AsOfDate)
		assert.Empty(t, rpt.Items)
	})

	t.Run("missing items", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"as_of_date":"2024-01-01"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		require.Len(t, env.Error.Details, 1)
		assert.Equal(t, "items", env.Error.Details[0].Field)
	})

	t.Run("invalid item names the field", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"items":[{"sku":"W-1","name":"Widget","onHand":-1,"price":1,"costPerUnit":1,"totalUnitsSold":0,"averageDailyUsage":0}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		require.Len(t, env.Error.Details, 1)
		assert.Equal(t, "onHand", env.Error.Details[0].Field)
	})

	t.Run("malformed as-of date is rejected by binding", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"as_of_date":"01/02/2024","items":[]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w)
		require.Len(t, env.Error.Details, 1)
		assert.Equal(t, "as_of_date", env.Error.Details[0].Field)
	})

	t.Run("unknown source", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"source":"ftp","items":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"items":[`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, decodeEnvelope(t, w).Success)
	})

	t.Run("api source without client", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports", `{"source":"api"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeBadGateway, decodeEnvelope(t, w).Error.Code)
	})
}

func TestInventoryReportHandler_BuildReport_APISource(t *testing.T) {
	t.Run("uses fetched items", func(t *testing.T) {
		var raw inventory.RawItem
		require.NoError(t, json.Unmarshal([]byte(widgetJSON), &raw))
		source := &stubItemSource{items: []inventory.RawItem{raw}}
		r, _ := setupReportRouter(t, testReportSettings(true), source)

		w := postJSON(r, "/inventory-reports", `{"source":"api","as_of_date":"2024-01-01"}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, source.calls)
		var rpt reportBody
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rpt))
		require.Len(t, rpt.Items, 1)
		assert.Equal(t, "W-1", rpt.Items[0].SKU)
	})

	t.Run("fetch failure maps to bad gateway", func(t *testing.T) {
		source := &stubItemSource{err: errors.New("connection refused")}
		r, _ := setupReportRouter(t, testReportSettings(true), source)

		w := postJSON(r, "/inventory-reports", `{"source":"api"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decodeEnvelope(t, w).Error.Message, "connection refused")
	})
}

func TestInventoryReportHandler_FormatEmail(t *testing.T) {
	r, _ := setupReportRouter(t, testReportSettings(true), nil)

	t.Run("renders email", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports/email",
			`{"rep":{"name":"  Avery ","email":"avery@example.com"},"as_of_date":"2024-01-01","items":[`+widgetJSON+`]}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var email dto.EmailResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &email))
		assert.Equal(t, "Inventory report (2024-01-01)", email.Subject)
		assert.True(t, strings.HasPrefix(email.Body, "Hi Avery,\n"))
		assert.Contains(t, email.Body, "- Widget (W-1): 10 on hand")
		assert.Contains(t, email.Body, "stock-out 2024-01-06, image: N/A")
	})

	t.Run("missing rep", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports/email", `{"items":[]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w)
		require.Len(t, env.Error.Details, 1)
		assert.Equal(t, "rep", env.Error.Details[0].Field)
	})

	t.Run("blank rep email", func(t *testing.T) {
		w := postJSON(r, "/inventory-reports/email", `{"rep":{"name":"Avery","email":"  "},"items":[]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "rep.email", decodeEnvelope(t, w).Error.Details[0].Field)
	})
}

func TestInventoryReportHandler_BuildRecipients(t *testing.T) {
	r, _ := setupReportRouter(t, testReportSettings(true), nil)

	t.Run("merges and deduplicates", func(t *testing.T) {
		w := postJSON(r, "/recipients", `{"base":["a@example.com"," b@example.com "],"added":["a@example.com","","c@example.com"]}`)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.RecipientsResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
		assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, resp.Recipients)
	})

	t.Run("empty lists give an empty list", func(t *testing.T) {
		w := postJSON(r, "/recipients", `{}`)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.RecipientsResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
		assert.NotNil(t, resp.Recipients)
		assert.Empty(t, resp.Recipients)
	})

	t.Run("too many recipients", func(t *testing.T) {
		added := make([]string, reportapp.MaxRecipients+1)
		for i := range added {
			added[i] = "dup@example.com"
		}
		body, err := json.Marshal(dto.BuildRecipientsRequest{Added: added})
		require.NoError(t, err)

		w := postJSON(r, "/recipients", string(body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, "recipient list exceeds maximum size of 500", env.Error.Message)
		assert.Equal(t, "recipients", env.Error.Details[0].Field)
	})
}

func TestInventoryReportHandler_RunReport(t *testing.T) {
	t.Run("writes one message per rep", func(t *testing.T) {
		r, outbox := setupReportRouter(t, testReportSettings(true), nil)

		w := postJSON(r, "/inventory-reports/runs",
			`{"as_of_date":"2024-01-01","items":[`+widgetJSON+`],"reps":[{"name":"Avery","email":"avery@example.com"},{"name":"Sam","email":"sam@example.com"}],"recipients":["lead@example.com"]}`)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var result struct {
			RunID      string   `json:"run_id"`
			Recipients []string `json:"recipients"`
			Messages   []struct {
				To string   `json:"to"`
				Cc []string `json:"cc"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
		assert.NotEmpty(t, result.RunID)
		assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, result.Recipients)
		require.Len(t, result.Messages, 2)
		assert.Equal(t, "avery@example.com", result.Messages[0].To)
		assert.Equal(t, "sam@example.com", result.Messages[1].To)

		keys := outbox.Keys()
		require.Len(t, keys, 2)
		for _, key := range keys {
			assert.True(t, strings.HasPrefix(key, "outbox/2024-01-01/"+result.RunID+"/"), key)
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		r, outbox := setupReportRouter(t, testReportSettings(true), nil)

		w := postJSON(r, "/inventory-reports/runs", `{"items":[`+widgetJSON+`],"dry_run":true}`)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Empty(t, outbox.Keys())
		assert.Contains(t, w.Body.String(), `"subject":"Inventory report (2024-01-01)"`)
	})

	t.Run("disabled reports", func(t *testing.T) {
		r, outbox := setupReportRouter(t, testReportSettings(false), nil)

		w := postJSON(r, "/inventory-reports/runs", `{"items":[`+widgetJSON+`]}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeDisabled, decodeEnvelope(t, w).Error.Code)
		assert.Empty(t, outbox.Keys())
	})

	t.Run("repeated idempotency key is rejected", func(t *testing.T) {
		r, outbox := setupReportRouter(t, testReportSettings(true), nil)
		body := `{"as_of_date":"2024-01-01","items":[` + widgetJSON + `]}`

		send := func() *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/inventory-reports/runs", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(IdempotencyKeyHeader, "weekly-2024-01-01")
			r.ServeHTTP(w, req)
			return w
		}

		first := send()
		require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

		second := send()
		assert.Equal(t, http.StatusConflict, second.Code)
		assert.Equal(t, dto.ErrCodeDuplicateRun, decodeEnvelope(t, second).Error.Code)
		assert.Len(t, outbox.Keys(), 1)
	})

	t.Run("invalid item aborts before delivery", func(t *testing.T) {
		r, outbox := setupReportRouter(t, testReportSettings(true), nil)

		w := postJSON(r, "/inventory-reports/runs", `{"items":[{"sku":"","name":"x"}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, outbox.Keys())
	})
}
