package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain bytes", "65536", 65536, false},
		{"bytes suffix", "1024B", 1024, false},
		{"kibibytes", "64Ki", 64 * 1024, false},
		{"mebibytes", "1MiB", 1024 * 1024, false},
		{"gibibytes", "1Gi", 1024 * 1024 * 1024, false},
		{"decimal kilobytes", "64K", 64 * 1000, false},
		{"case insensitive", "64ki", 64 * 1024, false},
		{"whitespace", " 64Ki ", 64 * 1024, false},
		{"fractional", "1.5Mi", ByteSize(1.5 * 1024 * 1024), false},
		{"empty", "", 0, true},
		{"unknown unit", "1Xi", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestByteSizeUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("64Ki")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 64*1024 {
		t.Errorf("got %d, want %d", b, 64*1024)
	}

	if err := b.UnmarshalText([]byte("not-a-size")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestByteSizeMarshalText(t *testing.T) {
	b := ByteSize(64 * 1024)
	out, err := b.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "64.00KiB" {
		t.Errorf("got %q, want %q", out, "64.00KiB")
	}
}

func TestByteSizeString(t *testing.T) {
	tests := []struct {
		input ByteSize
		want  string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{1 * MiB, "1.00MiB"},
		{1 * GiB, "1.00GiB"},
	}
	for _, tt := range tests {
		if got := tt.input.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestByteSizeConversions(t *testing.T) {
	size := ByteSize(0x10000)
	if got := size.Uint32(); got != 0x10000 {
		t.Errorf("Uint32() = %d, want %d", got, 0x10000)
	}
	if got := size.Uint64(); got != 0x10000 {
		t.Errorf("Uint64() = %d, want %d", got, 0x10000)
	}
}
