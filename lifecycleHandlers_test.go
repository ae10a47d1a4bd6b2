package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/craftstock_backend/memstore"
	"github.com/mmdatafocus/craftstock_backend/middlewares"
	"github.com/mmdatafocus/craftstock_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*gin.Engine, *ledgerAPI) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := workflow.NewLedgerEngine(memstore.New(), logger)
	engine.BookProductionCost = false
	engine.Retry = workflow.RetryPolicy{MaxAttempts: 2}

	api := &ledgerAPI{outboxDB: func() *gorm.DB { return nil }}
	api.engine.Store(engine)
	return newRouter(api), api
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func seedSku(t *testing.T, r http.Handler, units int) (materialId, skuId int) {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/purchases", map[string]any{
		"material_name": "glass beads",
		"material_type": "beads",
		"quantity":      "100",
		"unit_price":    "0.25",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /purchases = %d %s", w.Code, w.Body.String())
	}
	materialId = int(body["material_id"].(float64))

	w, body = doJSON(t, r, http.MethodPost, "/skus", map[string]any{
		"name":           "bracelet",
		"materials":      []map[string]any{{"material_id": materialId, "quantity_used": "10"}},
		"units_produced": units,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /skus = %d %s", w.Code, w.Body.String())
	}
	return materialId, int(body["sku_id"].(float64))
}

func TestReadinessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api := &ledgerAPI{}
	r := newRouter(api)

	w, _ := doJSON(t, r, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("/healthz = %d, want 204", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/skus", map[string]any{"name": "x"}, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("POST /skus before ready = %d, want 503", w.Code)
	}
	if w.Header().Get(middlewares.HeaderCorrelationId) == "" {
		t.Fatalf("correlation id header missing")
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)
	materialId, skuId := seedSku(t, r, 2)

	w, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/skus/%d/restock-capacity", skuId), nil, nil)
	if w.Code != http.StatusOK || body["producible_units"].(float64) != 18 {
		t.Fatalf("restock-capacity = %d %v", w.Code, body)
	}

	w, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/skus/%d/sell", skuId), map[string]any{"quantity": 1, "sale_price": "12.50"}, nil)
	if w.Code != http.StatusOK || body["status"] != "PARTIALLY_SOLD" {
		t.Fatalf("sell = %d %v", w.Code, body)
	}
	ref := body["business_operation_ref"].(string)

	w, body = doJSON(t, r, http.MethodGet, "/financial-records/"+ref, nil, nil)
	if w.Code != http.StatusOK || body["type"] != "INCOME" || body["amount"] != "12.5" {
		t.Fatalf("financial record = %d %v", w.Code, body)
	}

	w, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/skus/%d/restock", skuId), map[string]any{"units": 3}, nil)
	if w.Code != http.StatusOK || body["total_quantity"].(float64) != 5 {
		t.Fatalf("restock = %d %v", w.Code, body)
	}

	w, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/skus/%d/destroy", skuId), map[string]any{
		"quantity":           1,
		"return_to_material": true,
		"return_quantities":  map[string]string{fmt.Sprint(materialId): "5"},
	}, nil)
	if w.Code != http.StatusOK || body["available_quantity"].(float64) != 3 {
		t.Fatalf("destroy = %d %v", w.Code, body)
	}

	w, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/skus/%d/reconstruct", skuId), nil, nil)
	if w.Code != http.StatusOK || body["consistent"] != true {
		t.Fatalf("reconstruct = %d %v", w.Code, body)
	}
	w, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/skus/%d/financial-invariant", skuId), nil, nil)
	if w.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("financial-invariant = %d %v", w.Code, body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	r, _ := newTestServer(t)
	materialId, skuId := seedSku(t, r, 1)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"invalid recipe", http.MethodPost, "/skus", map[string]any{"name": "x", "units_produced": 0, "materials": []map[string]any{{"material_id": materialId, "quantity_used": "1"}}}, http.StatusBadRequest, "InvalidRecipe"},
		{"insufficient stock", http.MethodPost, "/skus", map[string]any{"name": "x", "units_produced": 1, "materials": []map[string]any{{"material_id": materialId, "quantity_used": "1000"}}}, http.StatusConflict, "InsufficientStock"},
		{"unknown sku", http.MethodPost, "/skus/999/sell", map[string]any{"quantity": 1, "sale_price": "1"}, http.StatusNotFound, "NotFound"},
		{"oversell", http.MethodPost, fmt.Sprintf("/skus/%d/sell", skuId), map[string]any{"quantity": 5, "sale_price": "1"}, http.StatusConflict, "InsufficientAvailable"},
		{"zero quantity", http.MethodPost, fmt.Sprintf("/skus/%d/sell", skuId), map[string]any{"quantity": 0, "sale_price": "1"}, http.StatusBadRequest, "InvalidQuantity"},
		{"return exceeds consumption", http.MethodPost, fmt.Sprintf("/skus/%d/destroy", skuId), map[string]any{"quantity": 1, "return_to_material": true, "return_quantities": map[string]string{fmt.Sprint(materialId): "999"}}, http.StatusUnprocessableEntity, "ReturnExceedsConsumption"},
		{"bad material type", http.MethodPost, "/purchases", map[string]any{"material_name": "x", "material_type": "liquid", "quantity": "1", "unit_price": "1"}, http.StatusBadRequest, "InvalidQuantity"},
		{"missing name", http.MethodPost, "/skus", map[string]any{"units_produced": 1}, http.StatusBadRequest, "InvalidQuantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := doJSON(t, r, tc.method, tc.path, tc.body, nil)
			if w.Code != tc.status || body["kind"] != tc.kind {
				t.Fatalf("%s %s = %d %v, want %d %s", tc.method, tc.path, w.Code, body, tc.status, tc.kind)
			}
		})
	}

	w, _ := doJSON(t, r, http.MethodGet, "/skus/abc/reconstruct", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric sku id = %d, want 400", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/nowhere", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", w.Code)
	}
}

func TestInsufficientStockBodyCarriesQuantities(t *testing.T) {
	r, _ := newTestServer(t)
	materialId, _ := seedSku(t, r, 1)

	w, body := doJSON(t, r, http.MethodPost, "/skus", map[string]any{
		"name":           "x",
		"units_produced": 1,
		"materials":      []map[string]any{{"material_id": materialId, "quantity_used": "91"}},
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body["material_id"].(float64) != float64(materialId) || body["requested"] != "91" || body["available"] != "90" {
		t.Fatalf("body = %v", body)
	}
}

func TestIdempotencyKeyHeader(t *testing.T) {
	r, _ := newTestServer(t)
	headers := map[string]string{middlewares.HeaderIdempotencyKey: "purchase-42"}
	purchase := map[string]any{"material_name": "wire", "material_type": "WEIGHT", "quantity": "3.5", "unit_price": "4"}

	w, first := doJSON(t, r, http.MethodPost, "/purchases", purchase, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("first = %d %s", w.Code, w.Body.String())
	}
	w, second := doJSON(t, r, http.MethodPost, "/purchases", purchase, headers)
	if w.Code != http.StatusOK || second["replayed"] != true || second["purchase_id"] != first["purchase_id"] {
		t.Fatalf("replay = %d %v", w.Code, second)
	}

	purchase["quantity"] = "4"
	w, body := doJSON(t, r, http.MethodPost, "/purchases", purchase, headers)
	if w.Code != http.StatusConflict || body["kind"] != "IdempotencyConflict" {
		t.Fatalf("conflict = %d %v", w.Code, body)
	}
}

func TestOutboxEndpointsNeedDatabase(t *testing.T) {
	r, _ := newTestServer(t)
	w, _ := doJSON(t, r, http.MethodGet, "/internal/ops/outbox/SELL-1", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("outbox status without db = %d, want 503", w.Code)
	}
}
