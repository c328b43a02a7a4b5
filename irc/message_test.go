package irc

import (
	"bytes"
	"strings"
	"testing"
)

func TestParse_Basic(t *testing.T) {
	msg, err := Parse([]byte(":nick!user@host PRIVMSG #chan :hello there"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "nick!user@host", msg.Sender; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "PRIVMSG", msg.Name; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := 2, len(msg.Args); exp != got {
		t.Fatalf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "#chan", msg.Args[0]; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "hello there", msg.Args[1]; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestParse_CaseAndNumerics(t *testing.T) {
	msg, err := Parse([]byte("privmsg #c :x"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "PRIVMSG", msg.Name; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}

	msg, err = Parse([]byte(":irc.server 001 me :Welcome"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "001", msg.Name; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestParse_Tags(t *testing.T) {
	msg, err := Parse([]byte("@time=2021-01-01T00:00:00Z;id=abc :n!u@h PRIVMSG #c :hi"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "time=2021-01-01T00:00:00Z;id=abc", msg.Tags; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "PRIVMSG", msg.Name; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestParse_LenientLastParam(t *testing.T) {
	msg, err := Parse([]byte("NICK newnick"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "newnick", msg.Args[0]; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"empty with prefix", ":prefix "},
		{"mixed alnum command", "0a1 arg"},
		{"two digit numeric", "01 arg"},
		{"four digit numeric", "0001 arg"},
		{"punctuation command", "PRIV-MSG arg"},
		{"embedded nul", "PRIVMSG #c :a\x00b"},
		{"too many args", "CMD 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16"},
	}

	for _, test := range tests {
		if _, err := Parse([]byte(test.line)); err == nil {
			t.Errorf("%v: expected a parse error", test.name)
		}
	}
}

func TestParse_ErrorDoesNotPanicOnFuzzishInput(t *testing.T) {
	lines := []string{":", "@", "@ ", ": ", "  ", ":a", "@a"}
	for _, line := range lines {
		Parse([]byte(line))
	}
}

func TestSerialize(t *testing.T) {
	line, n, err := Serialize("PRIVMSG", "#chan", "hello there")
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "PRIVMSG #chan :hello there\r\n", string(line); exp != got {
		t.Errorf("Expected: %q, got: %q", exp, got)
	}
	if exp, got := len(line), n; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestSerialize_NoColonWhenNotNeeded(t *testing.T) {
	line, _, err := Serialize("NICK", "newnick")
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "NICK newnick\r\n", string(line); exp != got {
		t.Errorf("Expected: %q, got: %q", exp, got)
	}
}

func TestSerialize_EmptyTrailing(t *testing.T) {
	line, _, err := Serialize("TOPIC", "#chan", "")
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "TOPIC #chan :\r\n", string(line); exp != got {
		t.Errorf("Expected: %q, got: %q", exp, got)
	}
}

func TestSerializeTrailing(t *testing.T) {
	line, _, err := SerializeTrailing("CAP", "REQ", "sasl")
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := "CAP REQ :sasl\r\n", string(line); exp != got {
		t.Errorf("Expected: %q, got: %q", exp, got)
	}
}

func TestSerialize_Errors(t *testing.T) {
	if _, _, err := Serialize(""); err == nil {
		t.Error("expected an encode error for an empty command")
	}
	if _, _, err := Serialize("PRIVMSG", "bad arg", "trailing"); err == nil {
		t.Error("expected an encode error for a spaced middle arg")
	}
	if _, _, err := Serialize("PRIVMSG", "#c", "bad\r\narg"); err == nil {
		t.Error("expected an encode error for an embedded newline")
	}
}

// Parsing, serializing and reparsing a line must be a fixed point
// modulo command case and the optional colon on the final parameter.
func TestParse_SerializeFixedPoint(t *testing.T) {
	lines := []string{
		":nick!user@host PRIVMSG #chan :hello there",
		":irc.server 001 me :Welcome to the network",
		"PING :token",
		":a@h JOIN #chan",
		"privmsg #c one two :three four",
		"@id=1;time=x :n!u@h NOTICE #c :tagged",
	}

	for _, line := range lines {
		first, err := Parse([]byte(line))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", line, err)
		}
		second, err := Parse([]byte(first.String()))
		if err != nil {
			t.Fatalf("%q: reparse error: %v", line, err)
		}

		if exp, got := first.Name, second.Name; exp != got {
			t.Errorf("%q: Expected: %v, got: %v", line, exp, got)
		}
		if exp, got := first.Sender, second.Sender; exp != got {
			t.Errorf("%q: Expected: %v, got: %v", line, exp, got)
		}
		if exp, got := first.Tags, second.Tags; exp != got {
			t.Errorf("%q: Expected: %v, got: %v", line, exp, got)
		}
		if exp, got := len(first.Args), len(second.Args); exp != got {
			t.Fatalf("%q: Expected: %v args, got: %v", line, exp, got)
		}
		for i := range first.Args {
			if exp, got := first.Args[i], second.Args[i]; exp != got {
				t.Errorf("%q: arg %d: Expected: %v, got: %v", line, i, exp, got)
			}
		}
	}
}

func TestMessage_Raw(t *testing.T) {
	raw := []byte(":n!u@h PRIVMSG #c :hi")
	msg, err := Parse(raw)
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if !bytes.Equal(raw, msg.Raw) {
		t.Error("raw bytes were not preserved")
	}
}

func TestMessage_Helpers(t *testing.T) {
	msg, err := Parse([]byte(":nick!user@host PRIVMSG #chan :hi"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}

	if exp, got := "nick", msg.Nick(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	nick, user, host := msg.SplitHost()
	if exp, got := "nick", nick; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "user", user; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "host", host; exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if !msg.HasUserHost() {
		t.Error("expected a full mask")
	}
	if exp, got := "#chan", msg.Target(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if exp, got := "hi", msg.Trailing(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestMessage_BareSender(t *testing.T) {
	msg, err := Parse([]byte(":irc.example.org NOTICE * :Looking up your hostname"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if msg.HasUserHost() {
		t.Error("expected a bare sender")
	}
	if exp, got := "irc.example.org", msg.Nick(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestParse_TrailingWithColonByte(t *testing.T) {
	msg, err := Parse([]byte("PRIVMSG #c ::)"))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if exp, got := ":)", msg.Trailing(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if !strings.HasPrefix(msg.String(), "PRIVMSG #c ::") {
		t.Errorf("reserialization lost the colon: %q", msg.String())
	}
}
