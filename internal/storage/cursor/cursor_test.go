package cursor

import (
	"errors"
	"testing"
)

func TestEncodeDecodeKeepsState(t *testing.T) {
	in := Prev(42, `kind = "external_payment"`, true)
	token, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
	if out.Dir != Forward || !out.Reverse {
		t.Fatalf("previous page of descending listing should read forward reversed, got %+v", out)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "!!!", "bm90LWpzb24", "eyJzZXEiOjEsImRpciI6InNpZGV3YXlzIn0"} {
		if _, err := Decode(token); err == nil {
			t.Fatalf("Decode(%q) succeeded", token)
		}
	}
}

func TestCheckDetectsScopeChange(t *testing.T) {
	c := Next(10, `amount > 100`, false)
	if err := c.Check(`amount > 100`, false); err != nil {
		t.Fatalf("same scope rejected: %v", err)
	}
	if err := c.Check(`amount > 200`, false); !errors.Is(err, ErrFilterChanged) {
		t.Fatalf("changed filter: got %v", err)
	}
	if err := c.Check(`amount > 100`, true); !errors.Is(err, ErrFilterChanged) {
		t.Fatalf("changed order: got %v", err)
	}
}

func TestNextDirection(t *testing.T) {
	if got := Next(1, "", false).Dir; got != Forward {
		t.Fatalf("ascending next = %s", got)
	}
	if got := Next(1, "", true).Dir; got != Backward {
		t.Fatalf("descending next = %s", got)
	}
	if Scope("", false) != "" {
		t.Fatal("default scope should be empty")
	}
}
