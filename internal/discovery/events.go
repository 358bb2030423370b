package discovery

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// CreateEvent is the anchor event pump.fun emits when a token is launched.
type CreateEvent struct {
	Name         string
	Symbol       string
	URI          string
	Mint         string // base58
	BondingCurve string // base58
	User         string // base58, the creator's wallet
}

// maxBorshString bounds string fields so a corrupt length cannot allocate unbounded memory.
const maxBorshString = 1024

var (
	createEventDiscriminator = anchorEventDiscriminator("CreateEvent")

	errNotCreateEvent = errors.New("not a create event")
)

// anchorEventDiscriminator returns the 8-byte prefix anchor writes before an event's fields.
func anchorEventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// decodeCreateEvent decodes a borsh-encoded CreateEvent. Trailing fields added by
// newer program versions are ignored.
func decodeCreateEvent(data []byte) (*CreateEvent, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], createEventDiscriminator[:]) {
		return nil, errNotCreateEvent
	}

	r := &borshReader{data: data[8:]}
	ev := &CreateEvent{
		Name:   r.string(),
		Symbol: r.string(),
		URI:    r.string(),
	}
	ev.Mint = r.pubkey()
	ev.BondingCurve = r.pubkey()
	ev.User = r.pubkey()

	if r.err != nil {
		return nil, fmt.Errorf("decode create event: %w", r.err)
	}
	return ev, nil
}

// borshReader reads little-endian borsh fields, remembering the first error.
type borshReader struct {
	data []byte
	off  int
	err  error
}

func (r *borshReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("short buffer: need %d bytes at offset %d, have %d", n, r.off, len(r.data))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *borshReader) string() string {
	lenBytes := r.take(4)
	if lenBytes == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	if n > maxBorshString {
		r.err = fmt.Errorf("string length %d exceeds %d", n, maxBorshString)
		return ""
	}
	return string(r.take(int(n)))
}

func (r *borshReader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}
