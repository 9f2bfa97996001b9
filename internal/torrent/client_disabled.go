//go:build !torrent

package torrent

// Available reports whether a real torrent client is compiled in.
const Available = false

// NewSession always fails without the torrent build tag.
func NewSession(SessionConfig) (Session, error) {
	return nil, ErrUnavailable
}
