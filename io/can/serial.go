package can

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/snksoft/crc"
	"github.com/tarm/serial"

	"github.com/bdube/pmu/comm"
)

// frame wire format, mirroring nkt/telegram.go's telegram shape:
// [telStart][SIGNAL_ID u32 BE][VALUE i32 BE][CRC16 XMODEM][telEnd]
const (
	telStart = 0x0D
	telEnd   = 0x0A
)

var crcTable = crc.NewTable(crc.XMODEM)

// ErrCRCMismatch is returned when a received frame's CRC does not match its
// payload, the serial equivalent of nkt's ErrRemoteCRCMismatch.
var ErrCRCMismatch = errors.New("can: CRC mismatch")

// SerialGateway is a CAN-over-serial (or CAN-over-TCP) gateway built on
// comm.RemoteDevice, framed exactly as nkt's telegram protocol: XMODEM CRC,
// single start/end bytes. Reused here generalized from "NKT register
// read/write" to "CAN signal extraction."
type SerialGateway struct {
	dev    comm.RemoteDevice
	frames chan Frame
	stop   chan struct{}
}

// NewSerialGateway builds a gateway over addr (TCP) or a serial port
// (isSerial true, cfg required).
func NewSerialGateway(addr string, isSerial bool, cfg *serial.Config) *SerialGateway {
	dev := comm.NewRemoteDevice(addr, isSerial, &comm.Terminators{Rx: telEnd, Tx: telEnd}, cfg)
	return &SerialGateway{dev: dev, frames: make(chan Frame, 256), stop: make(chan struct{})}
}

// Frames implements Gateway.
func (g *SerialGateway) Frames() <-chan Frame { return g.frames }

// Run opens the connection and reads frames until Stop is called, pushing
// each successfully decoded frame onto Frames. It is meant to run in its own
// goroutine, feeding the single-producer buffer Bus.Sample drains each cycle.
func (g *SerialGateway) Run(nowMS func() int64) error {
	if err := g.dev.Open(); err != nil {
		return err
	}
	defer g.dev.Close()

	reader := bufio.NewReader(g.dev.Conn)
	for {
		select {
		case <-g.stop:
			return nil
		default:
		}
		raw, err := reader.ReadBytes(telEnd)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			continue
		}
		f, err := decodeFrame(raw)
		if err != nil {
			continue
		}
		f.TimestampMS = nowMS()
		select {
		case g.frames <- f:
		default: // buffer full: the newest frame is dropped rather than blocking
		}
	}
}

// Stop halts Run.
func (g *SerialGateway) Stop() { close(g.stop) }

func decodeFrame(raw []byte) (Frame, error) {
	start := bytes.IndexByte(raw, telStart)
	end := bytes.IndexByte(raw, telEnd)
	if start < 0 || end < 0 || end <= start {
		return Frame{}, errors.New("can: malformed frame")
	}
	body := raw[start+1 : end]
	if len(body) < 10 { // 4 (signal id) + 4 (value) + 2 (crc)
		return Frame{}, errors.New("can: short frame")
	}
	payload := body[:8]
	crcRecv := body[8:10]
	crcComputed := crcHelper(payload)
	if !bytes.Equal(crcRecv, crcComputed) {
		return Frame{}, ErrCRCMismatch
	}
	return Frame{
		SignalID: binary.BigEndian.Uint32(payload[0:4]),
		Value:    int32(binary.BigEndian.Uint32(payload[4:8])),
	}, nil
}

func crcHelper(buf []byte) []byte {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, crcTable.CRC16(crcUint))
	return out
}

