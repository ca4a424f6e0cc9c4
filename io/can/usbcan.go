package can

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gousb"
)

// USBGateway is a CAN-over-USB dongle gateway, grounded on usbtmc.USBDevice's
// gousb.Context/OpenDeviceWithVIDPID/DefaultInterface/bulk-endpoint shape,
// adapted from "USBTMC datagram" framing to fixed 16-byte CAN-over-USB
// frames: [SIGNAL_ID u32 BE][VALUE i32 BE][FLAGS u8][pad 7 bytes].
type USBGateway struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
	in     *gousb.InEndpoint

	frames chan Frame
	stop   chan struct{}
}

const usbFrameSize = 16

// NewUSBGateway opens the first device matching vid/pid and claims its
// default interface and in-endpoint epNum.
func NewUSBGateway(vid, pid gousb.ID, epNum int) (*USBGateway, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("can: no USB-CAN dongle found for vid=%v pid=%v", vid, pid)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		ctx.Close()
		return nil, err
	}
	iface, closer, err := dev.DefaultInterface()
	if err != nil {
		ctx.Close()
		return nil, err
	}
	in, err := iface.InEndpoint(epNum)
	if err != nil {
		closer()
		ctx.Close()
		return nil, err
	}
	return &USBGateway{
		ctx: ctx, device: dev, iface: iface, closer: closer, in: in,
		frames: make(chan Frame, 256), stop: make(chan struct{}),
	}, nil
}

// Frames implements Gateway.
func (g *USBGateway) Frames() <-chan Frame { return g.frames }

// Run reads fixed-size frames from the bulk in-endpoint until Stop is
// called, pushing each decoded frame onto Frames.
func (g *USBGateway) Run(nowMS func() int64) error {
	buf := make([]byte, usbFrameSize)
	for {
		select {
		case <-g.stop:
			return nil
		default:
		}
		n, err := g.in.Read(buf)
		if err != nil {
			continue
		}
		if n < 9 {
			continue
		}
		f := Frame{
			SignalID:    binary.BigEndian.Uint32(buf[0:4]),
			Value:       int32(binary.BigEndian.Uint32(buf[4:8])),
			TimestampMS: nowMS(),
		}
		select {
		case g.frames <- f:
		default:
		}
	}
}

// Stop halts Run and releases the USB interface/context.
func (g *USBGateway) Stop() {
	close(g.stop)
	g.closer()
	g.ctx.Close()
}
