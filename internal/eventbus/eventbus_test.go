package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type started struct{ Name string }
type finished struct{ Name string }

func useBus(t *testing.T) {
	t.Helper()
	Use(New())
	t.Cleanup(func() { Use(nil) })
}

func TestPublishDispatchesByType(t *testing.T) {
	useBus(t)

	var got []string
	Subscribe(func(_ context.Context, e started) { got = append(got, "started "+e.Name) })
	Subscribe(func(_ context.Context, e finished) { got = append(got, "finished "+e.Name) })

	Publish(context.Background(), started{Name: "a"})
	Publish(context.Background(), finished{Name: "a"})
	Publish(context.Background(), 42)

	require.Equal(t, []string{"started a", "finished a"}, got)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	useBus(t)

	var first, second int
	unsubscribe := Subscribe(func(context.Context, started) { first++ })
	Subscribe(func(context.Context, started) { second++ })

	Publish(context.Background(), started{})
	unsubscribe()
	unsubscribe()
	Publish(context.Background(), started{})

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestNoBus(t *testing.T) {
	Use(nil)
	unsubscribe := Subscribe(func(context.Context, started) { t.Fatal("handler called without a bus") })
	Publish(context.Background(), started{})
	unsubscribe()
}

func TestSubscribeDuringPublish(t *testing.T) {
	useBus(t)

	calls := 0
	Subscribe(func(context.Context, started) {
		calls++
		// Takes effect from the next publish.
		Subscribe(func(context.Context, started) { calls += 10 })
	})
	Publish(context.Background(), started{})
	require.Equal(t, 1, calls)
	Publish(context.Background(), started{})
	require.Equal(t, 12, calls)
}
