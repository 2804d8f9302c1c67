package device

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultAppID   = "nbeconnect"
	defaultTimeout = 5 * time.Second
	readBufferSize = 4096
)

// Options configures a UDPProxy
type Options struct {
	Password string
	// Address of the controller; empty selects broadcast discovery
	Address string
	Port    int
	// Serial selects discovery keyed by serial number, Address is ignored
	Serial           string
	AppID            string
	BroadcastAddress string
	DiscoveryRetries uint64
	Timeout          time.Duration
}

// UDPProxy is a Proxy speaking plain frames over UDP.
// Requests are serialized, the controller handles one at a time.
type UDPProxy struct {
	addr     *net.UDPAddr
	serial   string
	password string
	appID    string
	timeout  time.Duration
	logger   *logrus.Entry

	mu  sync.Mutex
	seq int
}

// Dial resolves the controller, through discovery if needed, and returns a
// proxy bound to it.
func Dial(ctx context.Context, opts Options, logger *logrus.Entry) (*UDPProxy, error) {
	if opts.Password == "" {
		return nil, errors.Wrap(ErrUnresolvable, "password is required")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.AppID == "" {
		opts.AppID = defaultAppID
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	p := &UDPProxy{
		serial:   opts.Serial,
		password: opts.Password,
		appID:    opts.AppID,
		timeout:  opts.Timeout,
		logger:   logger,
	}

	switch {
	case opts.Serial != "" || opts.Address == "":
		found, err := Discover(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		p.addr = found.Addr
		p.serial = found.Serial
		logger.WithFields(logrus.Fields{
			"address": found.Addr.String(),
			"serial":  found.Serial,
		}).Info("controller discovered")
	default:
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(opts.Address, strconv.Itoa(opts.Port)))
		if err != nil {
			return nil, errors.Wrapf(ErrUnresolvable, "resolve %s: %v", opts.Address, err)
		}
		p.addr = addr
	}

	return p, nil
}

// Addr returns the controller address
func (p *UDPProxy) Addr() *net.UDPAddr {
	return p.addr
}

// Fetch reads every datapoint under path
func (p *UDPProxy) Fetch(ctx context.Context, path string) ([]string, error) {
	req, err := readRequest(path)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}

	resp, err := p.roundTrip(ctx, req.function, req.payload)
	if err != nil {
		return nil, errors.WithMessagef(err, "fetch %s", path)
	}
	if resp.status != 0 {
		return nil, errors.Wrapf(ErrTransport, "fetch %s: status %d", path, resp.status)
	}
	return req.items(resp.payload), nil
}

// Write sets a single setting
func (p *UDPProxy) Write(ctx context.Context, path, value string) error {
	req, err := writeRequest(path, value)
	if err != nil {
		return errors.Wrap(ErrRejected, err.Error())
	}

	resp, err := p.roundTrip(ctx, req.function, req.payload)
	if err != nil {
		return errors.WithMessagef(err, "write %s", path)
	}
	if resp.status != 0 {
		return errors.Wrapf(ErrRejected, "write %s: status %d", path, resp.status)
	}
	return nil
}

func (p *UDPProxy) nextSeq() int {
	p.seq = (p.seq + 1) % 100
	return p.seq
}

func (p *UDPProxy) roundTrip(ctx context.Context, fn function, payload string) (response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.nextSeq()
	out, err := frame{
		appID:    p.appID,
		serial:   p.serial,
		function: fn,
		seq:      seq,
		pin:      p.password,
		time:     time.Now(),
		payload:  payload,
	}.encode()
	if err != nil {
		return response{}, errors.Wrap(ErrTransport, err.Error())
	}

	conn, err := net.DialUDP("udp", nil, p.addr)
	if err != nil {
		return response{}, errors.Wrap(ErrTransport, err.Error())
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return response{}, errors.Wrap(ErrTransport, err.Error())
	}

	if _, err := conn.Write(out); err != nil {
		return response{}, classifyNetError(err)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, errors.Wrap(ErrTimeout, ctx.Err().Error())
			}
			return response{}, classifyNetError(err)
		}

		resp, err := decodeResponse(buf[:n])
		if err != nil {
			return response{}, errors.Wrap(ErrTransport, err.Error())
		}
		if resp.seq != seq {
			// late reply to an earlier request
			p.logger.WithFields(logrus.Fields{
				"want": seq,
				"got":  resp.seq,
			}).Debug("dropping out of sequence reply")
			continue
		}
		return resp, nil
	}
}

func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return errors.Wrap(ErrTransport, err.Error())
}

var _ Proxy = (*UDPProxy)(nil)
