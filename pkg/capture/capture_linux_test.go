package capture

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPOnlyFilter_Compiles(t *testing.T) {
	insns, err := ipOnlyFilter()
	require.NoError(t, err)
	assert.NotEmpty(t, insns)
}

func TestEgressExcludingIPFilter_Compiles(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	insns, err := egressExcludingIPFilter(mac)
	require.NoError(t, err)
	assert.NotEmpty(t, insns)
}

func TestEgressExcludingIPFilter_RejectsBadMACLength(t *testing.T) {
	_, err := egressExcludingIPFilter(net.HardwareAddr{0x00, 0x11})
	assert.ErrorIs(t, err, errInvalidMAC)
}

func TestComputeRingSize(t *testing.T) {
	frameSize, blockSize, numBlocks, err := computeRingSize(4*1024*1024, DefaultSnapLen, 4096)
	require.NoError(t, err)
	assert.Greater(t, frameSize, 0)
	assert.Greater(t, blockSize, 0)
	assert.Greater(t, numBlocks, 0)
}

func TestComputeRingSize_TargetTooSmall(t *testing.T) {
	_, _, _, err := computeRingSize(1, DefaultSnapLen, 4096)
	assert.Error(t, err)
}
