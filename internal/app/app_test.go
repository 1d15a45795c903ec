package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/userdir/internal/config"
	"github.com/patric-chuzhbe/userdir/internal/db/jsondb"
	"github.com/patric-chuzhbe/userdir/internal/models"
)

const usersJSON = `{"users":[
	{"id":1,"firstName":"Émile","lastName":"Zola","email":"emile@example.com","username":"emile","age":62},
	{"id":2,"firstName":"Anna","lastName":"Karenina","email":"anna@example.com","username":"anna","age":28}
],"total":2,"skip":0,"limit":30}`

func newUsersAPI(t *testing.T) string {
	t.Helper()

	mux := chi.NewRouter()
	mux.Get("/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(usersJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestGetAvailableStorageType(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want int
	}{
		{name: "dsn wins", cfg: config.Config{DatabaseDSN: "dsn", RedisAddr: "localhost:6379", FavoritesFile: "f.json"}, want: models.StorageTypePostgresql},
		{name: "redis before file", cfg: config.Config{RedisAddr: "localhost:6379", FavoritesFile: "f.json"}, want: models.StorageTypeRedis},
		{name: "file", cfg: config.Config{FavoritesFile: "f.json"}, want: models.StorageTypeFile},
		{name: "memory fallback", cfg: config.Config{}, want: models.StorageTypeMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getAvailableStorageType(&tt.cfg))
		})
	}
}

func TestNewWithConfigFileStorage(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = newUsersAPI(t)
	cfg.FavoritesFile = filepath.Join(t.TempDir(), "favorites.json")
	cfg.WatchFavoritesFile = true
	cfg.Locale = "fr"

	app, err := NewWithConfig(&cfg)
	require.NoError(t, err)
	require.NotNil(t, app.watcher)

	ctx := context.Background()
	svc := app.Service()
	require.NoError(t, svc.Load(ctx))

	snapshot, err := svc.Sort(ctx, "name")
	require.NoError(t, err)
	require.Len(t, snapshot.Records, 2)
	assert.Equal(t, 2, snapshot.Records[0].ID)

	_, err = svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, app.Shutdown())

	reopened, err := jsondb.New(cfg.FavoritesFile)
	require.NoError(t, err)
	raw, found, err := reopened.Get(ctx, models.FavoritesStorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[1]`, string(raw))

	raw, found, err = reopened.Get(ctx, models.RecordsCacheStorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, string(raw), "Karenina")
}

func TestNewWithConfigRejectsBadSubnet(t *testing.T) {
	cfg := config.Default()
	cfg.TrustedSubnet = "not-a-cidr"

	_, err := NewWithConfig(&cfg)
	assert.Error(t, err)
}

func requireClosed(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s is still running", what)
	}
}

func TestRunReleasesResourcesWhenListenFails(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := config.Default()
	cfg.APIBaseURL = newUsersAPI(t)
	cfg.RunAddr = occupied.Addr().String()

	app, err := NewWithConfig(&cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = app.run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")

	requireClosed(t, app.notifier.Done(), "notifier")
}

func TestRunStopsBothServersOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = newUsersAPI(t)
	cfg.RunAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"

	app, err := NewWithConfig(&cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- app.run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout):
		t.Fatal("run did not return after cancel")
	}
	requireClosed(t, app.notifier.Done(), "notifier")
}

func TestRunFailsOnBusyGRPCAddress(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := config.Default()
	cfg.APIBaseURL = newUsersAPI(t)
	cfg.RunAddr = "127.0.0.1:0"
	cfg.GRPCAddr = occupied.Addr().String()

	app, err := NewWithConfig(&cfg)
	require.NoError(t, err)

	err = app.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grpcserver.NewGRPCServer()")
	requireClosed(t, app.notifier.Done(), "notifier")
}
