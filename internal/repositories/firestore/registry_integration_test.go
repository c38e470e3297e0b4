//go:build integration

package firestore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bobbygour30/admitcard/internal/platform/config"
	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
	"github.com/bobbygour30/admitcard/internal/repositories"
	"github.com/bobbygour30/admitcard/internal/repositories/repotest"
)

func startEmulator(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators",
			ExposedPorts: []string{"8080/tcp"},
			Cmd:          []string{"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet"},
			WaitingFor:   wait.ForLog("Dev App Server is now running").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("firestore emulator unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })
	endpoint, err := container.PortEndpoint(ctx, "8080/tcp", "")
	if err != nil {
		t.Fatalf("emulator endpoint: %v", err)
	}
	return endpoint
}

func TestRegistryContractAgainstEmulator(t *testing.T) {
	host := startEmulator(t)
	var seq atomic.Int64

	// Every subtest gets its own project so data never leaks between them.
	repotest.RunRegistryContract(t, func(t *testing.T) repositories.Registry {
		project := fmt.Sprintf("portal-test-%d", seq.Add(1))
		registry, err := NewRegistry(pfirestore.NewProvider(config.FirestoreConfig{ProjectID: project, EmulatorHost: host}))
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		t.Cleanup(func() { _ = registry.Close(context.Background()) })
		return registry
	})
}
