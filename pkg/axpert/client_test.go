package axpert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(response []byte) (*Client, *mockTransport) {
	tr := newMockTransport(response)
	c := NewClient(tr, WithChunkDelay(time.Millisecond), WithTimeout(time.Second))
	return c, tr
}

func TestExecuteQuery(t *testing.T) {
	assert := assert.New(t)

	c, tr := newTestClient(buildResponse(qpigsPayload))
	res, err := c.Execute(context.Background(), "QPIGS")
	assert.NoError(err)
	assert.Equal(KindQuery, res.Kind)
	assert.NotNil(res.Query)
	assert.Nil(res.Command)
	assert.Len(res.Query.Fields, 17)

	// the request frame went out, chunked
	assert.Equal(EncodeFrame("QPIGS"), tr.written())
}

func TestExecuteQueryWithUnits(t *testing.T) {
	assert := assert.New(t)

	c, _ := newTestClient(buildResponse(qpigsPayload))
	res, err := c.Execute(context.Background(), "QPIGS", WithUnits())
	assert.NoError(err)
	v, _ := res.Query.Get("grid_frequency")
	assert.Equal("49.9Hz", v.String())
}

func TestExecuteCommandAck(t *testing.T) {
	assert := assert.New(t)

	c, _ := newTestClient(buildResponse("ACK"))
	res, err := c.Execute(context.Background(), "POP02")
	assert.NoError(err)
	assert.Equal(KindCommand, res.Kind)
	assert.True(res.Command.Acknowledged)
}

func TestExecuteCommandNakIsNotAnError(t *testing.T) {
	assert := assert.New(t)

	c, _ := newTestClient(buildResponse("NAK"))
	res, err := c.Execute(context.Background(), "MCHGC010")
	assert.NoError(err)
	assert.False(res.Command.Acknowledged)
	assert.Equal("NAK", res.Command.Raw)
}

func TestExecuteCommandGarbageResponse(t *testing.T) {
	c, _ := newTestClient(buildResponse("BOGUS"))
	_, err := c.Execute(context.Background(), "POP02")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestExecuteUnknownMnemonicDoesNoIO(t *testing.T) {
	assert := assert.New(t)

	c, tr := newTestClient(nil)
	_, err := c.Execute(context.Background(), "ZZZ")
	assert.ErrorIs(err, ErrUnknownMnemonic)
	assert.Empty(tr.writes)
}

func TestExecuteCRCMismatchSkipsDecoding(t *testing.T) {
	assert := assert.New(t)

	raw := buildResponse(qpigsPayload)
	raw[len(raw)-3] ^= 0x01 // corrupt CRC high byte

	c, _ := newTestClient(raw)
	res, err := c.Execute(context.Background(), "QPIGS")
	assert.ErrorIs(err, ErrCRCMismatch)
	assert.Nil(res)
}

func TestExecuteTimeout(t *testing.T) {
	c, _ := newTestClient(nil) // device never answers
	c.timeout = 200 * time.Millisecond
	_, err := c.Execute(context.Background(), "QMOD")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExecuteCancelledContext(t *testing.T) {
	c, tr := newTestClient(buildResponse("B"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Execute(ctx, "QMOD")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.writes)
}

func TestQueryHelperRejectsCommands(t *testing.T) {
	c, _ := newTestClient(buildResponse("ACK"))
	_, err := c.Query(context.Background(), "POP02")
	assert.Error(t, err)
}

func TestExecuteSerializesExchanges(t *testing.T) {
	assert := assert.New(t)

	c, _ := newTestClient(buildResponse("B"))
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Execute(context.Background(), "QMOD")
			done <- err
		}()
	}
	// Only the first exchange finds response bytes; the second times out.
	// What matters is that neither panics nor interleaves writes.
	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatal("exchange did not finish")
		}
	}
	assert.True(true)
}

func TestResyncDrainsStrayBytes(t *testing.T) {
	assert := assert.New(t)

	// Leftover tail of an abandoned response, then a clean exchange.
	stray := append([]byte("tail of old frame"), frameTerminator)
	c, tr := newTestClient(append(stray, buildResponse("B")...))
	c.Resync()

	res, err := c.Execute(context.Background(), "QMOD")
	assert.NoError(err)
	v, _ := res.Query.Get("device_mode")
	assert.Equal("Battery mode", v.Str)
	assert.NotEmpty(tr.writes)
}
