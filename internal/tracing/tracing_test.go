package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/playerhub/internal/config"
)

func TestSetup_EnabledExportsSpans(t *testing.T) {
	var out bytes.Buffer
	tp, shutdown, err := Setup(config.TracingConfig{Enabled: true, SampleRatio: 1}, &out, "test")
	require.NoError(t, err)

	_, span := tp.Tracer("playerhub/realtime").Start(context.Background(), "dispatch chatMessage")
	assert.True(t, span.IsRecording())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "dispatch chatMessage")
	assert.Contains(t, out.String(), serviceName)
}

func TestSetup_ZeroRatioDropsSpans(t *testing.T) {
	var out bytes.Buffer
	tp, shutdown, err := Setup(config.TracingConfig{Enabled: true, SampleRatio: 0}, &out, "test")
	require.NoError(t, err)

	_, span := tp.Tracer("playerhub/realtime").Start(context.Background(), "dispatch chatMessage")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Empty(t, out.String())
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	var out bytes.Buffer
	tp, shutdown, err := Setup(config.TracingConfig{}, &out, "test")
	require.NoError(t, err)

	_, span := tp.Tracer("playerhub/realtime").Start(context.Background(), "dispatch connection")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, out.String())
}
