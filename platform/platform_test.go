package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPlatformInfo(t *testing.T) {
	info := NewPlatformInfo(BluezStack)

	assert.Contains(t, info.OS, runtime.GOOS)
	assert.True(t, info.Classic)
	assert.Equal(t, "BlueZ (DBus)", info.Stack.String())

	assert.False(t, NewPlatformInfo(LowEnergyStack).Classic)
}

func TestStack(t *testing.T) {
	stack, info := Stack(nil)

	assert.NotNil(t, stack)
	assert.Equal(t, runtime.GOOS == "linux", info.Classic)
}
