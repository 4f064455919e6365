package natskv

import "testing"

func TestKVKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tenant:sub:acme", "tenant.sub.acme"},
		{"tenant:id:42", "tenant.id.42"},
		{"idem:7:abc-DEF_1", "idem.7.abc-DEF_1"},
		{"idem:7:a b*c", "idem.7.a_b_c"},
	}
	for _, tt := range tests {
		if got := kvKey(tt.in); got != tt.want {
			t.Errorf("kvKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
