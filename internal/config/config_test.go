package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	// Empty values mask whatever the host env or a stray .env file carries
	// for the keys under test; the getters treat them as unset.
	for _, key := range []string{"QUEUE_NAME", "JOB_STORE_BACKEND", "STAGE_TIMEOUT", "DEQUEUE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "processing_queue", cfg.QueueName)
	assert.Equal(t, "redis", cfg.JobStoreBackend)
	assert.Equal(t, 300*time.Second, cfg.StageTimeout)
	assert.Equal(t, 10*time.Second, cfg.DequeueTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_NAME", "intake")
	t.Setenv("STAGE_TIMEOUT", "30s")
	t.Setenv("JOB_STORE_BACKEND", "postgres")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, "intake", cfg.QueueName)
	assert.Equal(t, 30*time.Second, cfg.StageTimeout)
	assert.Equal(t, "postgres", cfg.JobStoreBackend)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestStageAddrs(t *testing.T) {
	t.Setenv("OCR_SERVICE_ADDR", "http://ocr.internal:9100")

	addrs := Load().StageAddrs()

	assert.Equal(t, "http://ocr.internal:9100", addrs["ocr"])
	assert.Len(t, addrs, 4)
}
