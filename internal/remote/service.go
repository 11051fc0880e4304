// Package remote provides the ProgressService implementations that carry
// progress and settings documents to and from another device.
package remote

import (
	"context"
	"errors"

	"github.com/asteroid-belt/prepsync/internal/models"
)

var (
	// ErrNetworkUnavailable marks transport failures. Callers requeue and retry.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrPushFailed is returned when the service rejects a push.
	ErrPushFailed = errors.New("push failed")

	// ErrClientTooOld is returned by Ping when the service requires a newer client.
	ErrClientTooOld = errors.New("client version not supported by server")
)

// ProgressService is the network boundary for document sync.
// Fetch methods return nil and no error when the document does not exist.
type ProgressService interface {
	FetchProgress(ctx context.Context, userID string) (*models.ProgressDocument, error)
	PushProgress(ctx context.Context, userID string, doc *models.ProgressDocument) error
	FetchSettings(ctx context.Context, userID string) (*models.SettingsDocument, error)
	PushSettings(ctx context.Context, userID string, doc *models.SettingsDocument) error

	// Ping reports whether the service is reachable.
	Ping(ctx context.Context) error
}

// IsTransient reports whether err should be retried later rather than
// treated as a failure of the calling operation.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrPushFailed)
}
