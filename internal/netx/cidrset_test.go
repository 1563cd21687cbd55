package netx

import (
	"net"
	"testing"
)

func TestCIDRSetContains(t *testing.T) {
	set, err := ParseCIDRSet([]string{"10.0.0.0/8", "127.0.0.1", ""})
	if err != nil {
		t.Fatal(err)
	}
	if !set.Contains(net.ParseIP("10.1.2.3")) {
		t.Fatal("expected 10.1.2.3 to be contained")
	}
	if !set.Contains(net.ParseIP("127.0.0.1")) {
		t.Fatal("expected 127.0.0.1 to be contained")
	}
	if set.Contains(net.ParseIP("192.168.1.1")) {
		t.Fatal("did not expect 192.168.1.1 to be contained")
	}
}

func TestCIDRSetIPv6Shorthand(t *testing.T) {
	set, err := ParseCIDRSet([]string{"::1"})
	if err != nil {
		t.Fatal(err)
	}
	if !set.Contains(net.ParseIP("::1")) {
		t.Fatal("expected ::1 to be contained")
	}
	if set.Contains(net.ParseIP("::2")) {
		t.Fatal("did not expect ::2 to be contained")
	}
}

func TestCIDRSetRejectsGarbage(t *testing.T) {
	if _, err := ParseCIDRSet([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid ip")
	}
	if _, err := ParseCIDRSet([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error for invalid cidr")
	}
}

func TestNilSetContainsNothing(t *testing.T) {
	var set *CIDRSet
	if set.Contains(net.ParseIP("10.0.0.1")) {
		t.Fatal("nil set must not contain anything")
	}
}
