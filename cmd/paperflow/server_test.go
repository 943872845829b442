package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/config"
)

func TestRetrieveTopKDoublesAnswerBudget(t *testing.T) {
	cfg := config.DefaultAgentConfig()
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 6, retrieveTopK(cfg))

	cfg.TopK = 5
	assert.Equal(t, 10, retrieveTopK(cfg))
}

func TestListenerTimeouts(t *testing.T) {
	s := NewServer(config.DefaultConfig(), zap.NewNop())

	api := s.buildAPIServer(http.NewServeMux())
	assert.Equal(t, 30*time.Second, api.ReadTimeout)
	assert.Zero(t, api.WriteTimeout) // streamed responses outlive any fixed budget

	m := s.buildMetricsServer()
	assert.Equal(t, s.cfg.Server.WriteTimeout, m.WriteTimeout)
	assert.NotZero(t, m.WriteTimeout)
}
