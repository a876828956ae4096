package legacy

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{in: "mc.example.com", want: Address{Host: "mc.example.com", Port: DefaultPort}},
		{in: "mc.example.com:25566", want: Address{Host: "mc.example.com", Port: 25566}},
		{in: " 10.0.0.1:1234 ", want: Address{Host: "10.0.0.1", Port: 1234}},
		{in: "::1", want: Address{Host: "::1", Port: DefaultPort}},
		{in: "[::1]", want: Address{Host: "::1", Port: DefaultPort}},
		{in: "[::1]:30000", want: Address{Host: "::1", Port: 30000}},
		{in: "", wantErr: true},
		{in: "host:0", wantErr: true},
		{in: "host:70000", wantErr: true},
		{in: "host:abc", wantErr: true},
		{in: ":25565", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAddress(%q) = %+v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestAddressString(t *testing.T) {
	if got := (Address{Host: "::1", Port: 25565}).String(); got != "[::1]:25565" {
		t.Fatalf("got %s", got)
	}
	if got := (Address{Host: "example.com", Port: 1}).String(); got != "example.com:1" {
		t.Fatalf("got %s", got)
	}
}
