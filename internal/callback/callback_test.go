package callback

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	in := Payload{Action: ApproveDeposit, Request: strings.Repeat("f", 32)}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) > MaxLen {
		t.Fatalf("encoded length %d > %d", len(data), MaxLen)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestDelimiterInsideFieldIsSafe(t *testing.T) {
	in := Payload{Action: DepositNetwork, Network: `trc_20"_x`}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Network != in.Network {
		t.Fatalf("network = %q, want %q", out.Network, in.Network)
	}
}

func TestEncodeRejects(t *testing.T) {
	t.Run("unknown action", func(t *testing.T) {
		if _, err := Encode(Payload{Action: "approve_payment_1_2"}); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected ErrUnknownAction, got %v", err)
		}
	})
	t.Run("too long", func(t *testing.T) {
		_, err := Encode(Payload{Action: DepositNetwork, Network: strings.Repeat("x", 60)})
		if !errors.Is(err, ErrTooLong) {
			t.Fatalf("expected ErrTooLong, got %v", err)
		}
	})
}

func TestDecodeRejectsLegacyStrings(t *testing.T) {
	for _, data := range []string{"approve_payment_1_100_ref", `{"a":"nope"}`, ""} {
		if _, err := Decode(data); err == nil {
			t.Errorf("Decode(%q) expected error", data)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	if !ApproveDeposit.IsAdmin() || !SetCredentials.IsAdmin() {
		t.Fatal("admin actions not detected")
	}
	if GiftSend.IsAdmin() || MainMenu.IsAdmin() {
		t.Fatal("user action reported as admin")
	}
}
