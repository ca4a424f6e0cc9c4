package comm_test

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bdube/pmu/comm"
)

func echoServer(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadBytes('\r')
					if err != nil {
						return
					}
					if _, err := c.Write(line); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func TestRemoteDeviceSendRecvRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoServer(t, ln)

	rd := comm.NewRemoteDevice(ln.Addr().String(), false, nil, nil)
	if err := rd.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rd.Close()

	resp, err := rd.SendRecv([]byte("PING"))
	if err != nil {
		t.Fatalf("SendRecv: %v", err)
	}
	if string(resp) != "PING" {
		t.Fatalf("expected echoed PING, got %q", resp)
	}
}

func TestRemoteDeviceSendBeforeOpenErrors(t *testing.T) {
	rd := comm.NewRemoteDevice("127.0.0.1:1", false, nil, nil)
	if _, err := rd.SendRecv([]byte("x")); err != comm.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestRemoteDeviceOpenIsIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoServer(t, ln)

	rd := comm.NewRemoteDevice(ln.Addr().String(), false, nil, nil)
	if err := rd.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rd.Close()
	if err := rd.Open(); err != nil {
		t.Fatalf("second Open should be a no-op, got %v", err)
	}
}

func TestRemoteDeviceOpenSendRecvCloseRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoServer(t, ln)

	rd := comm.NewRemoteDevice(ln.Addr().String(), false, nil, nil)
	resp, err := rd.OpenSendRecvClose([]byte("PONG"))
	if err != nil {
		t.Fatalf("OpenSendRecvClose: %v", err)
	}
	if string(resp) != "PONG" {
		t.Fatalf("expected echoed PONG, got %q", resp)
	}
	// CloseEventually schedules its own close on a goroutine; the connection
	// must still be usable for a second round trip immediately, since Open
	// is a no-op while Conn is non-nil.
	resp, err = rd.OpenSendRecvClose([]byte("AGAIN"))
	if err != nil {
		t.Fatalf("second OpenSendRecvClose: %v", err)
	}
	if string(resp) != "AGAIN" {
		t.Fatalf("expected echoed AGAIN, got %q", resp)
	}
	rd.Close()
}

func TestTCPSetupTimesOutOnUnreachable(t *testing.T) {
	// RFC 5737 TEST-NET-1 address: reserved, never routable.
	_, err := comm.TCPSetup("192.0.2.1:9", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a dial error/timeout against an unroutable address")
	}
}

var _ io.Closer = (*comm.RemoteDevice)(nil)
