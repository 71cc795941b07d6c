package vfd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakePort answers every read-holding-register request with a canned register
// value.
type fakePort struct {
	value   uint16
	lastReq []byte
	readBuf bytes.Buffer
	fail    bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.lastReq = append([]byte(nil), b...)
	if p.fail {
		return len(b), nil
	}
	resp := appendCRC([]byte{b[0], 0x03, 2, byte(p.value >> 8), byte(p.value)})
	p.readBuf.Write(resp)
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readBuf.Len() == 0 {
		return 0, errors.New("timeout")
	}
	return p.readBuf.Read(b)
}

func TestCRC16(t *testing.T) {
	// reference frame: read one register at 0x0000 from slave 1
	assert.Equal(t, uint16(0x0A84), crc16([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}))
}

func TestReadHoldingRequest(t *testing.T) {
	req := readHoldingRequest(1, 0x2100, 1)
	assert.Equal(t, []byte{0x01, 0x03, 0x21, 0x00, 0x00, 0x01}, req[:6])

	crc := crc16(req[:6])
	assert.Equal(t, byte(crc), req[6])
	assert.Equal(t, byte(crc>>8), req[7])
}

func TestParseHoldingResponse(t *testing.T) {
	frame := appendCRC([]byte{0x01, 0x03, 2, 0x00, 0x2A})
	code, err := parseHoldingResponse(1, frame)
	require.NoError(t, err)
	assert.Equal(t, int32(42), code)

	frame[3]++ // corrupt the payload
	_, err = parseHoldingResponse(1, frame)
	assert.Equal(t, ErrBadCRC, err)

	frame[3]--
	_, err = parseHoldingResponse(2, frame)
	assert.Equal(t, ErrBadFrame, err)
}

func TestPoll(t *testing.T) {
	port := &fakePort{value: 7}
	m := New(port, DefaultConfig(), testLog())

	code, err := m.poll()
	require.NoError(t, err)
	assert.Equal(t, int32(7), code)
	assert.Equal(t, readHoldingRequest(1, 0x2100, 1), port.lastReq)
}

func TestLinkHealth(t *testing.T) {
	cfg := DefaultConfig()
	port := &fakePort{value: 0}
	m := New(port, cfg, testLog())
	require.True(t, m.OK())

	// the loop marks the link down only after FailLimit straight failures
	port.fail = true
	for i := 0; i < cfg.FailLimit; i++ {
		m.pollAndRecord()
	}
	assert.False(t, m.OK())

	port.fail = false
	m.pollAndRecord()
	assert.True(t, m.OK())
	assert.Equal(t, int32(0), m.ErrorCode())
}
