// Package vfd polls the spindle drive over its modbus RTU serial link and
// publishes the drive's error code and the health of the link itself. The
// safety interlock consumes both.
package vfd

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

var (
	// ErrBadCRC is returned when a response frame fails its checksum.
	ErrBadCRC = errors.New("vfd: bad crc")

	// ErrBadFrame is returned for a response that does not match the
	// request.
	ErrBadFrame = errors.New("vfd: unexpected response frame")
)

// Config holds the poller options.
type Config struct {
	// Port is the serial device path.
	Port string

	// Baud is the link speed.
	Baud int

	// SlaveID is the drive's modbus address.
	SlaveID byte

	// ErrorRegister is the holding register carrying the drive error
	// code; zero when healthy.
	ErrorRegister uint16

	// Interval is the poll period.
	Interval time.Duration

	// FailLimit is how many consecutive poll failures mark the link down.
	FailLimit int

	// Timeout bounds a single read on the port.
	Timeout time.Duration
}

// DefaultConfig returns poller defaults for the stock spindle drive.
func DefaultConfig() Config {
	return Config{
		Baud:          38400,
		SlaveID:       1,
		ErrorRegister: 0x2100,
		Interval:      100 * time.Millisecond,
		FailLimit:     3,
		Timeout:       250 * time.Millisecond,
	}
}

// Monitor polls one register and tracks link health. Create with New for an
// existing stream or Open for a serial port, then call Start.
type Monitor struct {
	cfg Config
	log *logrus.Entry
	rw  io.ReadWriter

	mx        sync.Mutex
	errorCode int32
	fails     int
	ok        bool

	stop chan struct{}
	once sync.Once
}

// New returns a monitor reading from rw. The link starts out healthy.
func New(rw io.ReadWriter, cfg Config, log *logrus.Entry) *Monitor {
	return &Monitor{
		cfg:  cfg,
		log:  log,
		rw:   rw,
		ok:   true,
		stop: make(chan struct{}),
	}
}

// Open opens the configured serial port and returns a monitor on it.
func Open(cfg Config, log *logrus.Entry) (*Monitor, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("vfd: open %s: %w", cfg.Port, err)
	}
	return New(port, cfg, log), nil
}

// Start launches the poll loop.
func (m *Monitor) Start() {
	go m.loop()
}

// Close stops the poll loop.
func (m *Monitor) Close() {
	m.once.Do(func() { close(m.stop) })
}

// ErrorCode returns the last error code read from the drive.
func (m *Monitor) ErrorCode() int32 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.errorCode
}

// OK reports whether the modbus link is healthy.
func (m *Monitor) OK() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.ok
}

func (m *Monitor) loop() {
	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
		}
		m.pollAndRecord()
	}
}

func (m *Monitor) pollAndRecord() {
	code, err := m.poll()
	m.mx.Lock()
	defer m.mx.Unlock()
	if err != nil {
		m.fails++
		if m.ok && m.fails >= m.cfg.FailLimit {
			m.ok = false
			m.log.Warnf("spindle link down: %v", err)
		}
		return
	}
	if !m.ok {
		m.log.Info("spindle link restored")
	}
	m.fails = 0
	m.ok = true
	m.errorCode = code
}

// poll reads the error register once.
func (m *Monitor) poll() (int32, error) {
	req := readHoldingRequest(m.cfg.SlaveID, m.cfg.ErrorRegister, 1)
	if _, err := m.rw.Write(req); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	// slave, function, byte count, 2 data bytes, 2 crc bytes
	resp := make([]byte, 7)
	if _, err := io.ReadFull(m.rw, resp); err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	return parseHoldingResponse(m.cfg.SlaveID, resp)
}

func readHoldingRequest(slave byte, register, count uint16) []byte {
	frame := []byte{
		slave, 0x03,
		byte(register >> 8), byte(register),
		byte(count >> 8), byte(count),
	}
	return appendCRC(frame)
}

func parseHoldingResponse(slave byte, frame []byte) (int32, error) {
	if len(frame) != 7 {
		return 0, ErrBadFrame
	}
	if crc16(frame[:5]) != uint16(frame[5])|uint16(frame[6])<<8 {
		return 0, ErrBadCRC
	}
	if frame[0] != slave || frame[1] != 0x03 || frame[2] != 2 {
		return 0, ErrBadFrame
	}
	return int32(uint16(frame[3])<<8 | uint16(frame[4])), nil
}

// crc16 is the modbus RTU checksum, poly 0xA001, transmitted low byte first.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(frame []byte) []byte {
	crc := crc16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}
