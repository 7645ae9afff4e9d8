package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	avail uint64
	err   error
}

func (p fakeProbe) Available() (uint64, error) { return p.avail, p.err }

func TestDeviceAdmit(t *testing.T) {
	d, err := NewDevice(DeviceConfig{MemoryLimit: "1MB", MinFreeMemory: "100kB"}, fakeProbe{avail: 2000000})
	require.NoError(t, err)

	assert.NoError(t, d.Admit(500000))

	err = d.Admit(1500000)
	assert.True(t, isResourceExhausted(err), "over the static limit")

	d, err = NewDevice(DeviceConfig{MinFreeMemory: "100kB"}, fakeProbe{avail: 1000000})
	require.NoError(t, err)
	assert.NoError(t, d.Admit(800000))
	assert.True(t, isResourceExhausted(d.Admit(950000)), "into the free-memory floor")
}

func TestDeviceAdmitProbeFailure(t *testing.T) {
	d, err := NewDevice(DeviceConfig{}, fakeProbe{err: errors.New("no /proc")})
	require.NoError(t, err)
	assert.NoError(t, d.Admit(1<<40))
}

func TestDeviceBadConfig(t *testing.T) {
	_, err := NewDevice(DeviceConfig{MemoryLimit: "lots"}, nil)
	assert.Error(t, err)
}

func TestDeviceDescribe(t *testing.T) {
	d, err := NewDevice(DeviceConfig{MemoryLimit: "2GB"}, fakeProbe{avail: 1 << 30})
	require.NoError(t, err)
	fields := d.Describe()
	keys := make(map[string]bool)
	for _, f := range fields {
		keys[f.Key] = true
	}
	assert.True(t, keys["cpu"])
	assert.True(t, keys["memory_available"])
	assert.True(t, keys["memory_limit"])
	d.Reclaim()
}
