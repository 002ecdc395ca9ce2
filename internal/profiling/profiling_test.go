package profiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "arbiter/config"
	"arbiter/logger"
)

func TestStartDisabledIsNoop(t *testing.T) {
	p, err := Start(appconfig.ProfilingConfig{}, "test", logger.GetLogger())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Stop())
}

func TestStartRequiresServerAddress(t *testing.T) {
	p, err := Start(appconfig.ProfilingConfig{Enabled: true}, "test", logger.GetLogger())
	assert.Error(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Stop())
}
