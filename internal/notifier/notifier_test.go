package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/patric-chuzhbe/userdir/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, events <-chan models.FavoritesEvent) models.FavoritesEvent {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	return models.FavoritesEvent{}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(4)
	n.Run(ctx)
	defer func() {
		cancel()
		<-n.Done()
	}()

	_, badge, cancelBadge := n.Subscribe()
	defer cancelBadge()
	_, page, cancelPage := n.Subscribe()
	defer cancelPage()

	n.Publish(models.FavoritesEvent{Favorites: models.FavoriteSet{1}, ToggledID: 1, Added: true})

	for _, events := range []<-chan models.FavoritesEvent{badge, page} {
		event := receive(t, events)
		assert.Equal(t, models.FavoriteSet{1}, event.Favorites)
		assert.Equal(t, 1, event.ToggledID)
		assert.True(t, event.Added)
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(1)
	n.Run(ctx)
	defer func() {
		cancel()
		<-n.Done()
	}()

	_, events, unsubscribe := n.Subscribe()
	assert.Equal(t, 1, n.SubscribersCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, n.SubscribersCount())

	_, ok := <-events
	assert.False(t, ok, "channel should be closed after cancel")
}

func TestLaggingSubscriberIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(1)
	n.Run(ctx)
	defer func() {
		cancel()
		<-n.Done()
	}()

	reported := make(chan error, 1)
	n.ListenErrors(func(err error) {
		select {
		case reported <- err:
		default:
		}
	})

	_, _, unsubscribe := n.Subscribe()
	defer unsubscribe()

	n.Publish(models.FavoritesEvent{ToggledID: 1})
	n.Publish(models.FavoritesEvent{ToggledID: 2})
	n.Publish(models.FavoritesEvent{ToggledID: 3})

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, ErrSubscriberLagging)
	case <-time.After(time.Second):
		t.Fatal("expected a lagging subscriber error")
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(1)
	n.Run(ctx)

	_, events, unsubscribe := n.Subscribe()

	cancel()
	<-n.Done()

	_, ok := <-events
	assert.False(t, ok)
	unsubscribe()

	n.Publish(models.FavoritesEvent{ToggledID: 9})

	_, late, _ := n.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after stop yields a closed channel")
}

func TestPublishCopiesFavorites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(2)
	n.Run(ctx)
	defer func() {
		cancel()
		<-n.Done()
	}()

	_, events, unsubscribe := n.Subscribe()
	defer unsubscribe()

	favorites := models.FavoriteSet{1, 2}
	n.Publish(models.FavoritesEvent{Favorites: favorites})
	favorites[0] = 42

	assert.Equal(t, models.FavoriteSet{1, 2}, receive(t, events).Favorites)
}
