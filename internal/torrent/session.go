package torrent

import "errors"

// ErrUnavailable is returned when the binary was built without the torrent
// client.
var ErrUnavailable = errors.New("torrent support not built in (rebuild with -tags torrent)")

// Handle is one torrent inside a Session.
type Handle interface {
	// GotInfo is closed once the info dict is known.
	GotInfo() <-chan struct{}
	Name() string
	Length() int64
	BytesCompleted() int64
	Peers() int
	// Start requests every piece.
	Start()
	// Drop removes the torrent from the session, keeping its files.
	Drop()
}

// Session is a running peer-to-peer client.
type Session interface {
	Add(src *Source, dir string) (Handle, error)
	Close() error
}

// SessionConfig configures the peer-to-peer client.
type SessionConfig struct {
	DataDir    string
	ListenPort int
}

// SessionFactory opens a Session; the default is the anacrolix client when
// built with the torrent tag.
type SessionFactory func(cfg SessionConfig) (Session, error)
