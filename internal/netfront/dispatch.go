//go:build linux

package netfront

import (
	"strings"

	"github.com/blinkdb/blink/internal/resp"
)

// dispatch runs one already-parsed command against the engine and returns
// its RESP-encoded reply. shutdown is true only for EXIT: the caller writes
// that reply and then closes the issuing connection. EXIT does not stop the
// server; other connections keep being served.
func (s *Server) dispatch(args []string) (reply []byte, shutdown bool) {
	verb := strings.ToUpper(args[0])

	switch verb {
	case "PING":
		return resp.Pong(), false

	case "SET":
		if len(args) != 3 {
			return resp.Err("wrong number of arguments for 'set' command"), false
		}
		if err := s.engine.Set(args[1], args[2]); err != nil {
			return resp.Err(err.Error()), false
		}
		return resp.OK(), false

	case "GET":
		if len(args) != 2 {
			return resp.Err("wrong number of arguments for 'get' command"), false
		}
		v, ok, err := s.engine.Get(args[1])
		if err != nil {
			return resp.Err(err.Error()), false
		}
		if !ok {
			return resp.NullBulk(), false
		}
		return resp.Bulk(v), false

	case "DEL":
		if len(args) != 2 {
			return resp.Err("wrong number of arguments for 'del' command"), false
		}
		existed, err := s.engine.Del(args[1])
		if err != nil {
			return resp.Err(err.Error()), false
		}
		if existed {
			return resp.Integer(1), false
		}
		return resp.Integer(0), false

	case "CLEAR", "FLUSHALL", "FLUSHDB":
		if err := s.engine.Clear(); err != nil {
			return resp.Err(err.Error()), false
		}
		return resp.OK(), false

	case "EXIT":
		return resp.OK(), true

	default:
		return resp.UnknownCommand(args[0]), false
	}
}
