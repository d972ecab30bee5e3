package square

import (
	"context"
	"net/http"
)

// UpsertCatalogObject creates or updates a catalog object. A temporary id ("#...")
// is replaced by a permanent id in the returned object.
func (c *Client) UpsertCatalogObject(ctx context.Context, idempotencyKey string, obj CatalogObject) (*CatalogObject, error) {
	body := struct {
		IdempotencyKey string        `json:"idempotency_key"`
		Object         CatalogObject `json:"object"`
	}{IdempotencyKey: idempotencyKey, Object: obj}

	var out struct {
		CatalogObject CatalogObject `json:"catalog_object"`
	}
	if err := c.call(ctx, "upsert_catalog_object", http.MethodPost, "/v2/catalog/object", body, &out); err != nil {
		return nil, err
	}
	return &out.CatalogObject, nil
}
