package catalog

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LocalIncomingRoot is the fixed prefix every canonicalized directory
// name is rooted under, mirroring check_fra_dir_pos's path-manipulation
// contract: scheme, credentials, and hostname are stripped from remote
// URLs and the remaining path is re-parented here.
const LocalIncomingRoot = "/afd/incoming"

// Canonicalize turns a raw directory URL or path into the normalized
// form the directory-name buffer stores. Remote URLs (ftp://, scp://,
// and similar) lose their scheme, userinfo, and host; what remains of
// the path is re-prefixed with LocalIncomingRoot. A bare local path is
// cleaned and returned unchanged in root.
func Canonicalize(raw string) string {
	var p string
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		p = path.Join(LocalIncomingRoot, u.Path)
	} else {
		p = path.Clean(raw)
	}
	p = norm.NFC.String(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
