package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

type contextKey string

const (
	apiKeyKey    contextKey = "api_key"
	keyPrefixKey contextKey = "key_prefix"
)

// SetAPIKey stores the authenticated key in ctx.
func SetAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	ctx = context.WithValue(ctx, apiKeyKey, key)
	return context.WithValue(ctx, keyPrefixKey, key.KeyPrefix)
}

// GetAPIKey returns the key Authenticate accepted for r.
func GetAPIKey(r *http.Request) (*models.APIKey, bool) {
	key, ok := r.Context().Value(apiKeyKey).(*models.APIKey)
	return key, ok
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}
