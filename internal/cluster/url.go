package cluster

import (
	"fmt"
	"regexp"

	"github.com/dreamware/varys/internal/varyserr"
)

// varysURLPattern matches "varys://host:port" peer addresses. Host may be
// a hostname or IPv4 literal; port is mandatory.
var varysURLPattern = regexp.MustCompile(`^varys://([a-zA-Z0-9_.\-]+):(\d{1,5})$`)

// PeerAddr is a resolved varys:// URL: a transport host and port.
type PeerAddr struct {
	Host string
	Port uint16
}

// ParsePeerURL resolves a "varys://host:port" URL into a PeerAddr.
// Registration fails (ConfigurationError) for any URL that doesn't match
// the fixed pattern, per spec §6.1.
func ParsePeerURL(url string) (PeerAddr, error) {
	m := varysURLPattern.FindStringSubmatch(url)
	if m == nil {
		return PeerAddr{}, varyserr.NewConfiguration("malformed peer url %q: want varys://host:port", url)
	}

	var port uint16
	if _, err := fmt.Sscanf(m[2], "%d", &port); err != nil || port == 0 {
		return PeerAddr{}, varyserr.NewConfiguration("malformed peer url %q: invalid port", url)
	}
	return PeerAddr{Host: m[1], Port: port}, nil
}

// FormatPeerURL renders a PeerAddr back to its varys:// form.
func FormatPeerURL(addr PeerAddr) string {
	return fmt.Sprintf("varys://%s:%d", addr.Host, addr.Port)
}
