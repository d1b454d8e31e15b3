package redis

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/config"
)

func redisConfigFor(t *testing.T, mr *miniredis.Miniredis) *config.Config {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := &config.Config{Redis: config.RedisConfig{Host: mr.Host(), Port: port}}
	return cfg
}

func TestInitAndHealth(t *testing.T) {
	original := Client
	defer func() { Client = original }()

	mr := miniredis.RunT(t)
	require.NoError(t, Init(redisConfigFor(t, mr)))
	defer Close()

	assert.NotNil(t, GetClient())
	assert.NoError(t, Health())

	mr.Close()
	assert.Error(t, Health())
}

func TestInitUnreachable(t *testing.T) {
	original := Client
	defer func() { Client = original }()
	Client = nil

	cfg := &config.Config{Redis: config.RedisConfig{Host: "127.0.0.1", Port: 1}}
	assert.Error(t, Init(cfg))
	assert.Nil(t, GetClient())
	assert.Error(t, Health())
}
