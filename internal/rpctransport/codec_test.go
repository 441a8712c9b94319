package rpctransport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTripsAndReportsProtoName(t *testing.T) {
	c := jsonCodec{}
	assert.Equal(t, "proto", c.Name())

	type payload struct {
		Term uint64
		Vote string
	}
	in := payload{Term: 7, Vote: "node-1"}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestErrNotRegisteredMessageNamesPeer(t *testing.T) {
	err := &ErrNotRegistered{PeerID: "node-9"}
	assert.Contains(t, err.Error(), "node-9")
}
