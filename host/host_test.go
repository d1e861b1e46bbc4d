package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHWAddrKeyPrependsType(t *testing.T) {
	hw := HWAddr{Type: 1, Addr: []byte{0xaa, 0xbb, 0xcc}}
	key := hw.Key()
	assert.Equal(t, []byte{1, 0xaa, 0xbb, 0xcc}, key)
}

func TestHWAddrSet(t *testing.T) {
	assert.False(t, HWAddr{}.Set())
	assert.True(t, HWAddr{Type: 1, Addr: []byte{1}}.Set())
}

func TestHostFlags(t *testing.T) {
	h := &Host{Flags: FlagStatic}
	assert.True(t, h.Static())
	assert.False(t, h.Deleted())

	h.Flags |= FlagDeleted
	assert.True(t, h.Deleted())
}

func TestHostUIDKey(t *testing.T) {
	h := &Host{}
	assert.Nil(t, h.UIDKey())
	h.ClientIdentifier = []byte{1, 2, 3}
	assert.Equal(t, []byte{1, 2, 3}, h.UIDKey())
}
