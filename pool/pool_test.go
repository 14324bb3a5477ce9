package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "valid", cfg: Config{ChunkSize: 64, Capacity: 4}, expectErr: false},
		{name: "zero_chunk_size", cfg: Config{ChunkSize: 0, Capacity: 4}, expectErr: true},
		{name: "zero_capacity", cfg: Config{ChunkSize: 64, Capacity: 0}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.cfg.ChunkSize, p.ChunkSize())
		})
	}
}

func TestAcquireRelease(t *testing.T) {
	p, err := New(Config{ChunkSize: 16, Capacity: 2})
	require.NoError(t, err)

	s1, err := p.Acquire()
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.InUse())

	s2, err := p.Acquire()
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.InUse())

	_, err = p.Acquire()
	assert.Error(t, err)
	assert.True(t, IsOutOfMemory(err))

	s1.Release()
	assert.EqualValues(t, 1, p.InUse())

	s3, err := p.Acquire()
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.InUse())

	s2.Release()
	s3.Release()
	assert.EqualValues(t, 0, p.InUse())
}

func TestSliceRefCounting(t *testing.T) {
	p, err := New(Config{ChunkSize: 8, Capacity: 1})
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)

	held := s.Ref()
	assert.EqualValues(t, 2, s.RefCount())
	assert.EqualValues(t, 1, p.InUse())

	s.Release()
	assert.EqualValues(t, 1, p.InUse(), "chunk must stay checked out while a ref remains")

	held.Release()
	assert.EqualValues(t, 0, p.InUse())
}

func TestPoisoning(t *testing.T) {
	p, err := New(Config{ChunkSize: 8, Capacity: 1, Poison: true})
	require.NoError(t, err)

	s, err := p.Acquire()
	require.NoError(t, err)
	for _, b := range s.Bytes() {
		assert.Equal(t, byte(poisonByte), b)
	}

	copy(s.Bytes(), []byte{1, 2, 3})
	s.Release()

	s2, err := p.Acquire()
	require.NoError(t, err)
	for _, b := range s2.Bytes() {
		assert.Equal(t, byte(poisonByte), b, "released chunk must be re-poisoned on next acquire")
	}
}
