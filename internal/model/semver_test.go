package model

import "testing"

func TestParseSemVer(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"1.2.3", false},
		{"0.0.1-beta", false},
		{"1.2", true},
		{"v1.2.3", true},
		{"1.2.3.4", true},
	}
	for _, c := range cases {
		_, err := ParseSemVer(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseSemVer(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestSemVerLess(t *testing.T) {
	a, _ := ParseSemVer("1.2.3")
	b, _ := ParseSemVer("1.10.0")
	if !a.Less(b) {
		t.Fatalf("expected 1.2.3 < 1.10.0")
	}
	if b.Less(a) {
		t.Fatalf("expected 1.10.0 not < 1.2.3")
	}

	pre, _ := ParseSemVer("1.0.0-rc1")
	rel, _ := ParseSemVer("1.0.0")
	if !pre.Less(rel) {
		t.Fatalf("expected pre-release to sort before release")
	}
}
