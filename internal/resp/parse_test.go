package resp

import (
	"reflect"
	"testing"
)

func TestParseCommand_Array(t *testing.T) {
	t.Parallel()

	buf := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	args, consumed, err := ParseCommand(buf)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed want %d, got %d", len(buf), consumed)
	}
	want := []string{"SET", "k", "v"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args want %v, got %v", want, args)
	}
}

func TestParseCommand_Inline(t *testing.T) {
	t.Parallel()

	buf := []byte("PING\r\n")
	args, consumed, err := ParseCommand(buf)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed want %d, got %d", len(buf), consumed)
	}
	if !reflect.DeepEqual(args, []string{"PING"}) {
		t.Fatalf("args want [PING], got %v", args)
	}
}

func TestParseCommand_IncompleteArray(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"*3\r\n",
		"*3\r\n$3\r\nSET\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv",
	}
	for _, c := range cases {
		_, _, err := ParseCommand([]byte(c))
		if err != ErrIncomplete {
			t.Fatalf("ParseCommand(%q) want ErrIncomplete, got %v", c, err)
		}
	}
}

func TestParseCommand_EmptyArrayIsNoOp(t *testing.T) {
	t.Parallel()

	args, consumed, err := ParseCommand([]byte("*0\r\n"))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed want 4, got %d", consumed)
	}
	if len(args) != 0 {
		t.Fatalf("args want empty, got %v", args)
	}
}

func TestParseCommand_InvalidMultibulkLength(t *testing.T) {
	t.Parallel()

	_, _, err := ParseCommand([]byte("*x\r\n"))
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("want *ProtocolError, got %T (%v)", err, err)
	}
	if perr.Consumed != 0 {
		t.Fatalf("an unparseable length should report Consumed=0, got %d", perr.Consumed)
	}
}

func TestParseCommand_BadBulkTerminatorIsRecoverable(t *testing.T) {
	t.Parallel()

	// $1\r\nkXY instead of $1\r\nk\r\n — wrong terminator after a
	// correctly-lengthed body. The frame's true extent is still known
	// (the declared length), so the caller can skip it and resync.
	buf := []byte("*1\r\n$1\r\nkXY")
	_, _, err := ParseCommand(buf)
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("want *ProtocolError, got %T (%v)", err, err)
	}
	if perr.Consumed != len(buf) {
		t.Fatalf("want Consumed %d so the whole frame is skipped, got %d", len(buf), perr.Consumed)
	}
}

func TestParseCommand_MultipleCommandsInOneBuffer(t *testing.T) {
	t.Parallel()

	buf := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	args1, n1, err := ParseCommand(buf)
	if err != nil {
		t.Fatalf("first ParseCommand: %v", err)
	}
	if !reflect.DeepEqual(args1, []string{"PING"}) {
		t.Fatalf("first args want [PING], got %v", args1)
	}

	args2, _, err := ParseCommand(buf[n1:])
	if err != nil {
		t.Fatalf("second ParseCommand: %v", err)
	}
	if !reflect.DeepEqual(args2, []string{"PING"}) {
		t.Fatalf("second args want [PING], got %v", args2)
	}
}

func TestParseCommand_BinaryValueRoundTrips(t *testing.T) {
	t.Parallel()

	// A value containing embedded CRLF bytes must still be read exactly,
	// because bulk parsing is byte-exact on the declared length.
	value := "a\r\nb"
	buf := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$" + "4" + "\r\n" + value + "\r\n")
	args, _, err := ParseCommand(buf)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if args[2] != value {
		t.Fatalf("value want %q, got %q", value, args[2])
	}
}
