package device

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// DefaultPort is the controller's UDP port
const DefaultPort = 8483

const (
	frameStart byte = 0x02
	frameEnd   byte = 0x04

	appIDLen  = 12
	serialLen = 6
	pinLen    = 10

	// plain text frames, no encryption
	encryptionNone byte = ' '

	maxPayload = 999
)

type function int

const (
	fnDiscovery       function = 0
	fnReadSetup       function = 1
	fnSetSetup        function = 2
	fnReadOperating   function = 4
	fnReadAdvanced    function = 5
	fnReadConsumption function = 6
)

// frame is a request sent to the controller
type frame struct {
	appID    string
	serial   string
	function function
	seq      int
	pin      string
	time     time.Time
	payload  string
}

func fit(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + string(bytes.Repeat([]byte{' '}, n-len(s)))
}

// encode renders the request:
// appID(12) serial(6) enc(1) STX fn(2) seq(2) pin(10) unix(10) len(3) payload EOT
func (f frame) encode() ([]byte, error) {
	if len(f.payload) > maxPayload {
		return nil, fmt.Errorf("payload too long: %d bytes", len(f.payload))
	}

	var b bytes.Buffer
	b.WriteString(fit(f.appID, appIDLen))
	b.WriteString(fit(f.serial, serialLen))
	b.WriteByte(encryptionNone)
	b.WriteByte(frameStart)
	fmt.Fprintf(&b, "%02d%02d", int(f.function)%100, f.seq%100)
	b.WriteString(fit(f.pin, pinLen))
	fmt.Fprintf(&b, "%010d", f.time.Unix()%10000000000)
	fmt.Fprintf(&b, "%03d", len(f.payload))
	b.WriteString(f.payload)
	b.WriteByte(frameEnd)
	return b.Bytes(), nil
}

// response is a decoded controller reply
type response struct {
	appID    string
	serial   string
	function function
	seq      int
	status   int
	payload  string
}

// reply header: appID(12) serial(6) STX fn(2) seq(2) status(1) len(3)
const replyHeaderLen = appIDLen + serialLen + 1 + 2 + 2 + 1 + 3

func decodeResponse(b []byte) (response, error) {
	if len(b) < replyHeaderLen+1 {
		return response{}, fmt.Errorf("short frame: %d bytes", len(b))
	}
	if b[appIDLen+serialLen] != frameStart {
		return response{}, fmt.Errorf("missing start marker")
	}
	if b[len(b)-1] != frameEnd {
		return response{}, fmt.Errorf("missing end marker")
	}

	p := appIDLen + serialLen + 1
	fn, err := strconv.Atoi(string(b[p : p+2]))
	if err != nil {
		return response{}, fmt.Errorf("bad function field: %w", err)
	}
	seq, err := strconv.Atoi(string(b[p+2 : p+4]))
	if err != nil {
		return response{}, fmt.Errorf("bad sequence field: %w", err)
	}
	status, err := strconv.Atoi(string(b[p+4 : p+5]))
	if err != nil {
		return response{}, fmt.Errorf("bad status field: %w", err)
	}
	size, err := strconv.Atoi(string(b[p+5 : p+8]))
	if err != nil {
		return response{}, fmt.Errorf("bad length field: %w", err)
	}

	payload := b[replyHeaderLen : len(b)-1]
	if len(payload) != size {
		return response{}, fmt.Errorf("payload length %d does not match header %d", len(payload), size)
	}

	return response{
		appID:    string(bytes.TrimRight(b[:appIDLen], " ")),
		serial:   string(bytes.TrimRight(b[appIDLen:appIDLen+serialLen], " ")),
		function: function(fn),
		seq:      seq,
		status:   status,
		payload:  string(payload),
	}, nil
}

// encodeResponse is the inverse of decodeResponse, used by the fake
// controller in tests.
func encodeResponse(r response) []byte {
	var b bytes.Buffer
	b.WriteString(fit(r.appID, appIDLen))
	b.WriteString(fit(r.serial, serialLen))
	b.WriteByte(frameStart)
	fmt.Fprintf(&b, "%02d%02d%d%03d", int(r.function), r.seq, r.status, len(r.payload))
	b.WriteString(r.payload)
	b.WriteByte(frameEnd)
	return b.Bytes()
}

// decodeRequest parses a request frame, used by the fake controller in tests
func decodeRequest(b []byte) (frame, error) {
	const header = appIDLen + serialLen + 1 + 1 + 2 + 2 + pinLen + 10 + 3
	if len(b) < header+1 || b[len(b)-1] != frameEnd {
		return frame{}, fmt.Errorf("bad request frame")
	}
	p := appIDLen + serialLen + 2
	fn, err := strconv.Atoi(string(b[p : p+2]))
	if err != nil {
		return frame{}, err
	}
	seq, err := strconv.Atoi(string(b[p+2 : p+4]))
	if err != nil {
		return frame{}, err
	}
	pin := string(bytes.TrimRight(b[p+4:p+4+pinLen], " "))
	return frame{
		appID:    string(bytes.TrimRight(b[:appIDLen], " ")),
		serial:   string(bytes.TrimRight(b[appIDLen:appIDLen+serialLen], " ")),
		function: function(fn),
		seq:      seq,
		pin:      pin,
		payload:  string(b[header : len(b)-1]),
	}, nil
}
