// Package stream turns a streamed response body into a sequence of cumulative text fragments.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const readBufferSize = 4096

// ErrConsumed is yielded when a Fragments sequence is ranged over more than once.
var ErrConsumed = &models.Error{Kind: models.KindUnknown, Message: "stream already consumed"}

// Fragments returns a lazy sequence over the decoded text of r. Every yielded string is the whole
// text decoded so far, not the delta since the previous one. A chunk that ends inside a multi-byte
// character is held back until the rest of the character arrives.
//
// The sequence ends at end of stream. If the body contains bytes that are not valid UTF-8 (including
// a character cut short by the end of the stream), a KindDecode error is yielded and the sequence
// stops; fragments yielded before stay valid. The sequence can be ranged over only once.
func Fragments(r io.Reader) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrConsumed)
			return
		}

		tr := transform.NewReader(r, encoding.UTF8Validator)
		buf := make([]byte, readBufferSize)

		var sb strings.Builder
		for {
			n, err := tr.Read(buf)
			if n > 0 {
				sb.Write(buf[:n])
				if !yield(sb.String(), nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", classify(err))
				return
			}
		}
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, encoding.ErrInvalidUTF8):
		return &models.Error{Kind: models.KindDecode, Message: "invalid UTF-8 in response stream", Cause: err}
	case errors.Is(err, context.Canceled):
		return &models.Error{Kind: models.KindCancelled, Message: "response stream cancelled", Cause: err}
	default:
		return &models.Error{Kind: models.KindNetwork, Message: "error reading response stream", Cause: err}
	}
}
