package webhooklog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
)

func setupTestLog(t *testing.T, reclaim time.Duration) (*MongoLog, func()) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(uri))
	require.NoError(t, err)

	log := NewMongoLog(client.Database("testdb"), reclaim)
	require.NoError(t, log.CreateIndexes(ctx, 24*time.Hour))

	cleanup := func() {
		client.Disconnect(ctx)
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return log, cleanup
}

func TestClaim_FirstDeliveryWins(t *testing.T) {
	log, cleanup := setupTestLog(t, time.Minute)
	defer cleanup()
	ctx := context.Background()

	key := Key("evt_1", "charge.success")
	claimed, err := log.Claim(ctx, key, "charge.success", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, claimed)

	// duplicate delivery of the same event while the first is in flight
	claimed, err = log.Claim(ctx, key, "charge.success", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaim_ProcessedKeyIsNeverReclaimed(t *testing.T) {
	log, cleanup := setupTestLog(t, time.Millisecond)
	defer cleanup()
	ctx := context.Background()

	key := Key("evt_2", "charge.success")
	claimed, err := log.Claim(ctx, key, "charge.success", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, log.MarkProcessed(ctx, key))

	time.Sleep(10 * time.Millisecond) // well past the reclaim window

	claimed, err = log.Claim(ctx, key, "charge.success", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaim_StaleUnprocessedClaimIsReclaimable(t *testing.T) {
	log, cleanup := setupTestLog(t, 20*time.Millisecond)
	defer cleanup()
	ctx := context.Background()

	key := Key("evt_3", "transfer.success")
	claimed, err := log.Claim(ctx, key, "transfer.success", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, claimed)
	// the consumer crashes here: never marks processed

	time.Sleep(50 * time.Millisecond)

	claimed, err = log.Claim(ctx, key, "transfer.success", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, claimed, "stale claim should be reclaimable after the window")
}

func TestClaim_ConcurrentDeliveriesExactlyOneWinner(t *testing.T) {
	log, cleanup := setupTestLog(t, time.Minute)
	defer cleanup()
	ctx := context.Background()

	key := Key("evt_4", "charge.success")
	const deliveries = 8

	var wg sync.WaitGroup
	wins := make(chan bool, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := log.Claim(ctx, key, "charge.success", []byte(`{}`))
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestClaim_EmptyKey(t *testing.T) {
	log, cleanup := setupTestLog(t, time.Minute)
	defer cleanup()

	_, err := log.Claim(context.Background(), "", "charge.success", nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}
