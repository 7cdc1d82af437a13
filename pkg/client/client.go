package client

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
	"distritree/pkg/core/serialize"
	"distritree/pkg/model"
	"distritree/pkg/protocol"
)

// ErrServer wraps every error message returned by the server.
var ErrServer = errors.New("server error")

const dialTimeout = 5 * time.Second

// Client speaks the binary protocol. It is safe for concurrent use; requests
// are serialized over one connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	addr string
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &Client{
		conn: conn,
		addr: addr,
	}, nil
}

func (c *Client) Insert(key common.KeyType, value []byte) (*model.InsertResponse, error) {
	var resp model.InsertResponse
	if err := c.call(protocol.OpInsert, protocol.EncodeKey(key), value, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search looks key up through the index, or by scanning the leaf chain when
// optimized is false.
func (c *Client) Search(key common.KeyType, optimized bool) (*model.SearchResponse, error) {
	op := byte(protocol.OpSearch)
	if !optimized {
		op = protocol.OpScanSearch
	}
	var resp model.SearchResponse
	if err := c.call(op, protocol.EncodeKey(key), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Range(start, end common.KeyType, optimized bool) (*model.RangeResponse, error) {
	op := byte(protocol.OpRange)
	if !optimized {
		op = protocol.OpScanRange
	}
	var resp model.RangeResponse
	if err := c.call(op, protocol.EncodeKey(start), protocol.EncodeKey(end), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Snapshot() (*serialize.Node, error) {
	var n serialize.Node
	if err := c.call(protocol.OpSnapshot, nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) Clear() error {
	return c.call(protocol.OpClear, nil, nil, nil)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// call sends one request and decodes a RespVal body into out. A transport
// failure triggers a single reconnect and retry.
func (c *Client) call(op byte, key, val []byte, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pkg, err := c.roundTrip(op, key, val)
	if err != nil {
		pkg, err = c.reconnectAndRetry(op, key, val)
		if err != nil {
			return err
		}
	}

	switch pkg.Op {
	case protocol.RespOK:
		return nil
	case protocol.RespVal:
		if out == nil {
			return nil
		}
		return errors.Wrap(json.Unmarshal(pkg.Value, out), "decode response")
	case protocol.RespErr:
		return errors.Wrapf(ErrServer, "%s: %s", protocol.OpName(op), pkg.Value)
	default:
		return errors.Newf("unknown response 0x%02x", pkg.Op)
	}
}

func (c *Client) roundTrip(op byte, key, val []byte) (*protocol.Packet, error) {
	if err := protocol.Encode(c.conn, op, key, val); err != nil {
		return nil, err
	}
	return protocol.Decode(c.conn)
}

func (c *Client) reconnectAndRetry(op byte, key, val []byte) (*protocol.Packet, error) {
	c.conn.Close()
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "reconnect %s", c.addr)
	}
	c.conn = conn

	pkg, err := c.roundTrip(op, key, val)
	return pkg, errors.Wrapf(err, "retry %s", protocol.OpName(op))
}
