package state

import (
	"context"
	"fmt"
	"net"
	"os"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultStateStoreName = "statestore"

// daprStateClient is the subset of the Dapr client the store needs
type daprStateClient interface {
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*daprc.StateItem, error)
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...daprc.StateOption) error
	DeleteState(ctx context.Context, storeName, key string, meta map[string]string) error
	Close()
}

// DaprStore keeps values in a Dapr state store component so several
// processes on a cluster share the same credentials, ledger and cache.
type DaprStore struct {
	client         daprStateClient
	stateStoreName string
}

// GetEnvValue returns the environment value for key, or fallback when unset
func GetEnvValue(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// NewDaprStore connects to the local Dapr sidecar over gRPC
func NewDaprStore(cfg DaprConfig) (*DaprStore, error) {
	daprPort := cfg.GRPCPort
	if daprPort == "" {
		daprPort = GetEnvValue("DAPR_GRPC_PORT", "50001")
	}

	conn, err := grpc.Dial(
		net.JoinHostPort("127.0.0.1", daprPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	client := daprc.NewClientWithConnection(conn)

	storeName := cfg.StateStoreName
	if storeName == "" {
		storeName = defaultStateStoreName
	}

	log.Info().
		Str("port", daprPort).
		Str("state_store", storeName).
		Msg("Connected to Dapr sidecar")

	return newDaprStoreWithClient(client, storeName), nil
}

func newDaprStoreWithClient(client daprStateClient, storeName string) *DaprStore {
	return &DaprStore{
		client:         client,
		stateStoreName: storeName,
	}
}

// Get reads key from the state store
func (d *DaprStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	response, err := d.client.GetState(ctx, d.stateStoreName, key, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from DAPR: %w", key, err)
	}

	if response == nil || response.Value == nil {
		return nil, false, nil
	}

	return response.Value, true, nil
}

// Set writes key to the state store
func (d *DaprStore) Set(ctx context.Context, key string, value []byte) error {
	if err := d.client.SaveState(ctx, d.stateStoreName, key, value, nil); err != nil {
		return fmt.Errorf("failed to save %s to DAPR: %w", key, err)
	}
	return nil
}

// Delete removes key from the state store
func (d *DaprStore) Delete(ctx context.Context, key string) error {
	if err := d.client.DeleteState(ctx, d.stateStoreName, key, nil); err != nil {
		return fmt.Errorf("failed to delete %s from DAPR: %w", key, err)
	}
	return nil
}

// Close closes the Dapr client connection
func (d *DaprStore) Close() error {
	d.client.Close()
	return nil
}
