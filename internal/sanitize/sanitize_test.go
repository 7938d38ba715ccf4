package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	p := New()

	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  padded  ", "padded"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>`, ""},
		{"<img src=x onerror=alert(1)>", ""},
		{"fish & chips", "fish &amp; chips"},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Sanitize(tt.in), "input %q", tt.in)
	}
}
