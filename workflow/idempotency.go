package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
)

const (
	HandlerCreatePurchase = "CreatePurchase"
	HandlerCreateSku      = "CreateSku"
	HandlerSellSku        = "SellSku"
	HandlerDestroySku     = "DestroySku"
	HandlerRestockSku     = "RestockSku"
)

func requestHash(request any) (string, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// withIdempotency runs do once per (handler, Idempotency-Key) inside tx.
//
// A stored key with the same request hash replays its stored response and reports replayed=true
// without writing anything. The same key with a different request is an IdempotencyConflict.
// Without a key in ctx, do simply runs.
func withIdempotency[T any](ctx context.Context, tx models.LedgerTx, handlerName string, request any, do func() (*T, error)) (result *T, replayed bool, err error) {
	key, ok := utils.GetIdempotencyKeyFromContext(ctx)
	if !ok || key == "" {
		result, err = do()
		return result, false, err
	}

	hash, err := requestHash(request)
	if err != nil {
		return nil, false, err
	}

	existing, err := tx.FindIdempotencyKey(handlerName, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.RequestHash != hash {
			return nil, false, models.NewIdempotencyConflictError(handlerName, key)
		}
		var stored T
		if err := json.Unmarshal(existing.Response, &stored); err != nil {
			return nil, false, err
		}
		return &stored, true, nil
	}

	result, err = do()
	if err != nil {
		return nil, false, err
	}
	response, err := json.Marshal(result)
	if err != nil {
		return nil, false, err
	}
	if err := tx.SaveIdempotencyKey(&models.IdempotencyKey{
		HandlerName: handlerName,
		RequestKey:  key,
		RequestHash: hash,
		Status:      models.IdempotencyStatusSucceeded,
		Response:    response,
	}); err != nil {
		return nil, false, err
	}
	return result, false, nil
}
