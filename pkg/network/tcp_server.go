package network

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core"
	"distritree/pkg/logging"
	"distritree/pkg/model"
	"distritree/pkg/protocol"
)

type TCPServer struct {
	index  core.Index
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewTCPServer(index core.Index, logger *zap.Logger) *TCPServer {
	return &TCPServer{
		index:  index,
		logger: logging.Named(logger, "tcp"),
		conns:  make(map[net.Conn]struct{}),
	}
}

func (s *TCPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until Close is called.
func (s *TCPServer) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return l.Close()
	}
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("listening", zap.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		req, err := protocol.Decode(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("decode failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		body, err := s.dispatch(req)
		if err != nil {
			s.logger.Debug("request failed", zap.String("op", protocol.OpName(req.Op)), zap.Error(err))
			err = protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		} else if body == nil {
			err = protocol.Encode(conn, protocol.RespOK, nil, nil)
		} else {
			err = protocol.Encode(conn, protocol.RespVal, nil, body)
		}
		if err != nil {
			return
		}
	}
}

// dispatch runs one request and returns the JSON reply, or nil for RespOK.
func (s *TCPServer) dispatch(req *protocol.Packet) ([]byte, error) {
	switch req.Op {
	case protocol.OpInsert:
		k, err := protocol.DecodeKey(req.Key)
		if err != nil {
			return nil, err
		}
		if len(req.Value) == 0 {
			return nil, errors.New("value is required")
		}
		out, err := s.index.Insert(k, common.ValueType(req.Value))
		if err != nil {
			return nil, err
		}
		return json.Marshal(model.NewInsertResponse(out))

	case protocol.OpSearch, protocol.OpScanSearch:
		k, err := protocol.DecodeKey(req.Key)
		if err != nil {
			return nil, err
		}
		out, err := s.index.Search(k, req.Op == protocol.OpSearch)
		if err != nil {
			return nil, err
		}
		return json.Marshal(model.NewSearchResponse(out))

	case protocol.OpRange, protocol.OpScanRange:
		start, err := protocol.DecodeKey(req.Key)
		if err != nil {
			return nil, err
		}
		end, err := protocol.DecodeKey(req.Value)
		if err != nil {
			return nil, err
		}
		out, err := s.index.Range(start, end, req.Op == protocol.OpRange)
		if err != nil {
			return nil, err
		}
		return json.Marshal(model.NewRangeResponse(out))

	case protocol.OpSnapshot:
		snap, err := s.index.Snapshot()
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)

	case protocol.OpClear:
		return nil, s.index.Reset()

	default:
		return nil, errors.Newf("unknown op 0x%02x", req.Op)
	}
}
