package peerset

import "testing"

func TestRegisterAcceptsVariousForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://192.168.0.5:5000", "192.168.0.5:5000"},
		{"192.168.0.5:5000", "192.168.0.5:5000"},
		{"192.168.0.5:5000/chain/", "192.168.0.5:5000"},
	}
	for _, tc := range cases {
		s := New()
		if err := Register(s, tc.in); err != nil {
			t.Fatalf("Register(%q): %v", tc.in, err)
		}
		list := List(s)
		if len(list) != 1 || list[0] != tc.want {
			t.Fatalf("Register(%q): got %v, want [%s]", tc.in, list, tc.want)
		}
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	s := New()
	if err := Register(s, "h:1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(s, "h:1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if Len(s) != 1 {
		t.Fatalf("expected duplicate registration to be a no-op, got len %d", Len(s))
	}
}

func TestRemoveToleratesAbsence(t *testing.T) {
	s := New()
	Remove(s, "h:1")
	if Len(s) != 0 {
		t.Fatalf("expected empty set")
	}
}

func TestRegisterRejectsEmpty(t *testing.T) {
	s := New()
	if err := Register(s, ""); err == nil {
		t.Fatalf("expected empty address to be rejected")
	}
}
