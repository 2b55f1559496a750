// Package identity persists the widget's client identity and session id
// across restarts.
package identity

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Keys under which the identity pair is persisted.
const (
	KeyClientID  = "retail_client_id"
	KeySessionID = "chat_id"
)

// Store is a durable key/value store. Get reports ok=false when the key is
// absent; Delete on a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("identity: empty key")
	}
	return nil
}
