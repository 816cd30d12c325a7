// Package keygen produces license keys in the XXXX-XXXX-XXXX-XXXX format.
//
// Keys are candidates only. Uniqueness is enforced by the license store's
// unique constraint and the caller's retry loop.
package keygen

import (
	"crypto/rand"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	Alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	GroupCount  = 4
	GroupLength = 4
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// ValidFormat reports whether key matches the license key format.
func ValidFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// maxUnbiased is the largest multiple of len(Alphabet) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const maxUnbiased = 256 - (256 % len(Alphabet))

// maxReads bounds rejection sampling against a broken random source.
const maxReads = 16

type Generator struct {
	src io.Reader
}

// New returns a Generator reading from src, or crypto/rand when src is nil.
func New(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{src: src}
}

func (g *Generator) Generate() (string, error) {
	var sb strings.Builder
	sb.Grow(GroupCount*GroupLength + GroupCount - 1)

	buf := make([]byte, 32)
	written := 0
	for reads := 0; written < GroupCount*GroupLength; reads++ {
		if reads == maxReads {
			return "", errors.Errorf("random source yielded too few usable bytes after %d reads", maxReads)
		}
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", errors.Wrap(err, "read random source")
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			if written > 0 && written%GroupLength == 0 {
				sb.WriteByte('-')
			}
			sb.WriteByte(Alphabet[int(b)%len(Alphabet)])
			written++
			if written == GroupCount*GroupLength {
				break
			}
		}
	}
	return sb.String(), nil
}
