package embedding

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCachedClient_MissStoresThenHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	stub := &stubClient{vec: []float32{0.5, 0.25}}
	c := NewRedisCachedClient(stub, rdb, time.Hour, nil)

	image := []byte("ring")
	key := redisKey(image)
	data, err := json.Marshal(stub.vec)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(data), time.Hour).SetVal("OK")
	got, err := c.Embed(context.Background(), image, "ring.jpg")
	require.NoError(t, err)
	assert.Equal(t, stub.vec, got)
	assert.Equal(t, 1, stub.calls)

	mock.ExpectGet(key).SetVal(string(data))
	got, err = c.Embed(context.Background(), image, "ring.jpg")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, got)
	assert.Equal(t, 1, stub.calls, "hit must not call the wrapped client")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCachedClient_RedisErrorFallsThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	stub := &stubClient{vec: []float32{1}}
	c := NewRedisCachedClient(stub, rdb, 0, nil)

	image := []byte("watch")
	key := redisKey(image)
	mock.ExpectGet(key).SetErr(assert.AnError)
	mock.ExpectSet(key, "[1]", DefaultRedisTTL).SetErr(assert.AnError)

	got, err := c.Embed(context.Background(), image, "watch.jpg")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, got)
	assert.Equal(t, 1, stub.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCachedClient_ErrorsNotCached(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	stub := &stubClient{err: assert.AnError}
	c := NewRedisCachedClient(stub, rdb, time.Minute, nil)

	image := []byte("x")
	mock.ExpectGet(redisKey(image)).RedisNil()
	_, err := c.Embed(context.Background(), image, "")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCachedClient_EmptyImageSkipsRedis(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCachedClient(NewMockClient(4), rdb, time.Minute, nil)
	_, err := c.Embed(context.Background(), nil, "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
