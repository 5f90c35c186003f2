package metrics_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.CellDone("ok")
	c.CellDone("ok")
	c.Switched("Host", "ir")
	c.EngineStarted("ir", nil)
	c.EngineStarted("ir", errors.New("boom"))
	c.RelayEvent("ir", "stream")
	c.Exchange("get", nil)

	expected := `
# HELP switchboard_cells_total Total number of executed cells by status
# TYPE switchboard_cells_total counter
switchboard_cells_total{status="ok"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "switchboard_cells_total"))

	count, err := testutil.GatherAndCount(reg, "switchboard_engine_starts_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *metrics.Collectors
	assert.NotPanics(t, func() {
		c.CellDone("ok")
		c.Switched("a", "b")
		c.EngineStarted("a", nil)
		c.RelayEvent("a", "stream")
		c.ObserveRelay("a", 0)
		c.Exchange("put", nil)
	})
}

