package origin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Accounts.Example.COM/login?next=/", "accounts.example.com"},
		{"http://example.com:8080/path", "example.com"},
		{"example.com", "example.com"},
		{"example.com/path", "example.com"},
		{"https://user:pw@example.com/", "example.com"},
		{"https://example.com./", "example.com"},
		{"https://www.example.com", "www.example.com"},
		{"https://bücher.example", "xn--bcher-kva.example"},
		{"http://127.0.0.1:7654/", "127.0.0.1"},
		{"http://[::1]:80/", "::1"},
		{"https://r3---sn-4g5e6nsz.googlevideo.com/x", "r3---sn-4g5e6nsz.googlevideo.com"},
		{"https://My_Host.example.com/", "my_host.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeHost(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHost_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "https://", "file:///etc/passwd", "http://%zz"} {
		_, err := NormalizeHost(in)
		assert.ErrorIs(t, err, ErrInvalidHost, in)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		patterns []string
		want     bool
	}{
		{"exact host", "https://example.com/login", []string{"example.com"}, true},
		{"exact ignores case and port", "https://EXAMPLE.com:443/", []string{"Example.Com"}, true},
		{"pattern given as url", "https://example.com/a", []string{"https://example.com/other"}, true},
		{"subdomain of declared domain", "https://accounts.example.com/login", []string{"example.com"}, true},
		{"deep subdomain", "https://a.b.example.com", []string{"example.com"}, true},
		{"www on request side", "https://www.example.com", []string{"example.com"}, true},
		{"www on pattern side", "https://example.com", []string{"www.example.com"}, true},
		{"www pattern does not widen to siblings", "https://mail.example.com", []string{"www.example.com"}, false},
		{"wildcard subdomain", "https://accounts.example.com/login", []string{"*.example.com"}, true},
		{"wildcard bare domain", "https://example.com", []string{"*.example.com"}, true},
		{"wildcard other tld", "https://example.org", []string{"*.example.com"}, false},
		{"suffix is not subdomain", "https://notexample.com", []string{"example.com"}, false},
		{"parent is not matched by child pattern", "https://example.com", []string{"accounts.example.com"}, false},
		{"different domain", "https://example.org", []string{"example.com"}, false},
		{"empty pattern set", "https://example.com", nil, false},
		{"blank pattern", "https://example.com", []string{""}, false},
		{"bad pattern skipped", "https://example.com", []string{"http://%zz", "example.com"}, true},
		{"idn pattern", "https://xn--bcher-kva.example", []string{"bücher.example"}, true},
		{"ip exact", "http://127.0.0.1:3000/", []string{"127.0.0.1"}, true},
		{"ip no suffix match", "http://10.0.0.1/", []string{"0.0.1"}, false},
		{"wildcard ip rejected", "http://10.0.0.1/", []string{"*.0.0.1"}, false},
		{"unparsable request", "http://%zz", []string{"example.com"}, false},
		{"double hyphen label", "https://r3---sn-4g5e6nsz.googlevideo.com/x", []string{"*.googlevideo.com"}, true},
		{"underscore label", "https://my_host.example.com/", []string{"example.com"}, true},
		{"underscore pattern", "https://my_host.example.com/", []string{"my_host.example.com"}, true},
		{"multiple patterns", "https://login.example.net", []string{"example.com", "*.example.net"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.url, tt.patterns))
		})
	}
}
