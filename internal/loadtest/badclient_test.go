package loadtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOfAddsDefaultPort(t *testing.T) {
	host, err := hostOf("rtsp://10.0.0.5/live/cam1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:8554", host)
}

func TestHostOfKeepsExplicitPort(t *testing.T) {
	host, err := hostOf("rtsp://10.0.0.5:5540/live/cam1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5540", host)
}

func TestHostOfRejectsMalformedURL(t *testing.T) {
	_, err := hostOf("not-a-url")
	assert.Error(t, err)
}

func TestBadClientTypeNameKnownAndUnknown(t *testing.T) {
	bc := &BadClient{clientType: GarbageSender}
	assert.Equal(t, "GarbageSender", bc.TypeName())

	bc.clientType = BadClientType(999)
	assert.Equal(t, "Unknown", bc.TypeName())
}
