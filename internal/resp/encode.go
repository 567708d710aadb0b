package resp

import "strconv"

// OK encodes the no-payload success reply.
func OK() []byte { return []byte("+OK\r\n") }

// Pong encodes PING's reply.
func Pong() []byte { return []byte("+PONG\r\n") }

// Bulk encodes a GET hit.
func Bulk(v string) []byte {
	b := make([]byte, 0, len(v)+16)
	b = append(b, '$')
	b = append(b, strconv.Itoa(len(v))...)
	b = append(b, '\r', '\n')
	b = append(b, v...)
	b = append(b, '\r', '\n')
	return b
}

// NullBulk encodes a GET miss.
func NullBulk() []byte { return []byte("$-1\r\n") }

// Integer encodes DEL's :0/:1 reply (and is reusable for any other
// integer reply BLINK might add).
func Integer(n int64) []byte {
	b := make([]byte, 0, 20)
	b = append(b, ':')
	b = append(b, strconv.FormatInt(n, 10)...)
	b = append(b, '\r', '\n')
	return b
}

// Err encodes a protocol or argument error.
func Err(msg string) []byte {
	return append([]byte("-ERR "), append([]byte(msg), '\r', '\n')...)
}

// UnknownCommand encodes the unknown-verb reply.
func UnknownCommand(verb string) []byte {
	return Err("unknown command '" + verb + "'")
}
