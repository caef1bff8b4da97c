package ingestion

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeUint64LEMatchesStdlibEncoding(t *testing.T) {
	want := uint64(123456789012345)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, want)

	assert.Equal(t, want, decodeUint64LE(buf))
}

func TestDecodeUint64LEZero(t *testing.T) {
	assert.Equal(t, uint64(0), decodeUint64LE(make([]byte, 8)))
}
