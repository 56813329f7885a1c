package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "search-service")

	ch := make(chan *prometheus.Desc, 20)
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	assert.Len(t, names, 7)
	assert.Contains(t, names[0], "db_pool_acquired_connections")
}

func TestRedisPoolCollector_Collect(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	c := NewRedisPoolCollector(client, "search-service")
	assert.Equal(t, 5, testutil.CollectAndCount(c))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}
