// Package dapr adapts the Dapr sidecar's state and pub/sub building blocks
// to the service ports.
package dapr

import (
	"context"
	"fmt"

	daprclient "github.com/dapr/go-sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/dapr-shop/internal/port"
)

// StateClient is the subset of the Dapr client used by StateAdapter.
type StateClient interface {
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*daprclient.StateItem, error)
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...daprclient.StateOption) error
	SaveStateWithETag(ctx context.Context, storeName, key string, data []byte, etag string, meta map[string]string, so ...daprclient.StateOption) error
	DeleteState(ctx context.Context, storeName, key string, meta map[string]string) error
}

// StateAdapter stores blobs in a Dapr state store component, using etags as
// versions.
type StateAdapter struct {
	client    StateClient
	storeName string
}

func NewStateAdapter(client StateClient, storeName string) *StateAdapter {
	return &StateAdapter{client: client, storeName: storeName}
}

func (s *StateAdapter) Get(ctx context.Context, key string) (*port.StateItem, error) {
	item, err := s.client.GetState(ctx, s.storeName, key, nil)
	if err != nil {
		return nil, fmt.Errorf("dapr get state %s: %w", key, err)
	}
	if item == nil || len(item.Value) == 0 {
		return nil, nil
	}
	return &port.StateItem{Key: key, Value: item.Value, Version: item.Etag}, nil
}

func (s *StateAdapter) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.SaveState(ctx, s.storeName, key, value, nil); err != nil {
		return fmt.Errorf("dapr save state %s: %w", key, err)
	}
	return nil
}

func (s *StateAdapter) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	var err error
	if version == "" {
		err = s.client.SaveState(ctx, s.storeName, key, value, nil,
			daprclient.WithConcurrency(daprclient.StateConcurrencyFirstWrite))
	} else {
		err = s.client.SaveStateWithETag(ctx, s.storeName, key, value, version, nil,
			daprclient.WithConcurrency(daprclient.StateConcurrencyFirstWrite))
	}
	if isETagMismatch(err) {
		return port.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("dapr conditional save %s: %w", key, err)
	}
	return nil
}

func (s *StateAdapter) Delete(ctx context.Context, key string) error {
	if err := s.client.DeleteState(ctx, s.storeName, key, nil); err != nil {
		return fmt.Errorf("dapr delete state %s: %w", key, err)
	}
	return nil
}

// The sidecar reports etag mismatches as Aborted (and FailedPrecondition on
// some component versions).
func isETagMismatch(err error) bool {
	switch status.Code(err) {
	case codes.Aborted, codes.FailedPrecondition:
		return true
	}
	return false
}
