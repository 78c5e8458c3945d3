package scheduler_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txcore/scheduler"
)

func TestLoadConfigRoundTripsSampleYAML(t *testing.T) {
	sample := `
parallel: true
chunk_size: 8
max_tokens: 4
cache_capacity: 1048576
backend_write_timeout: 250ms
`
	cfg, err := scheduler.LoadConfig(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, scheduler.Config{
		Parallel:            true,
		ChunkSize:            8,
		MaxTokens:            4,
		CacheCapacityBytes:  1 << 20,
		BackendWriteTimeout: 250 * time.Millisecond,
	}, cfg)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	_, err := scheduler.LoadConfig(strings.NewReader("backend_write_timeout: not-a-duration\n"))
	assert.Error(t, err)
}
