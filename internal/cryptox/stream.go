package cryptox

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
)

// Artifact layout:
//
//	magic "AKV1" | chunk size uint32 BE | nonce prefix [8] | key commitment [32]
//	sealed chunk 0 | sealed chunk 1 | ... | sealed final chunk
//
// Each chunk is AES-256-GCM with nonce = prefix || uint32 BE counter and a
// one byte AAD marking the final chunk, so truncation, reordering and
// splicing all fail authentication. The commitment (HMAC of a constant under
// the key) rejects a wrong key before any plaintext is produced.
const (
	DefaultChunkSize = 64 << 10
	maxChunkSize     = 16 << 20

	headerSize      = 4 + 4 + noncePrefixSize + sha256.Size
	noncePrefixSize = 8
	tagSize         = 16
)

var (
	magic         = []byte("AKV1")
	commitContext = []byte("audiokeeper/commit")
)

func commitment(key []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(commitContext)
	return m.Sum(nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func chunkNonce(prefix []byte, counter uint32) []byte {
	nonce := make([]byte, 12)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[noncePrefixSize:], counter)
	return nonce
}

func chunkAAD(last bool) []byte {
	if last {
		return []byte{1}
	}
	return []byte{0}
}

func integrityErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrCryptoIntegrity, fmt.Sprintf(format, args...))
}

// Encrypt seals src into dst with the default chunk size and returns the
// number of plaintext bytes consumed.
func Encrypt(dst io.Writer, src io.Reader, key []byte) (int64, error) {
	return EncryptChunked(dst, src, key, DefaultChunkSize)
}

// EncryptChunked is Encrypt with an explicit chunk size.
func EncryptChunked(dst io.Writer, src io.Reader, key []byte, chunkSize int) (int64, error) {
	if chunkSize <= 0 || chunkSize > maxChunkSize {
		return 0, fmt.Errorf("%w: chunk size %d", common.ErrInvalidArgument, chunkSize)
	}
	aead, err := newGCM(key)
	if err != nil {
		return 0, err
	}

	prefix := common.GenerateRandByteArray(noncePrefixSize)

	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	header = binary.BigEndian.AppendUint32(header, uint32(chunkSize))
	header = append(header, prefix...)
	header = append(header, commitment(key)...)
	if _, err := dst.Write(header); err != nil {
		return 0, err
	}

	br := bufio.NewReaderSize(src, chunkSize)
	buf := make([]byte, chunkSize)
	sealed := make([]byte, 0, chunkSize+tagSize)
	var total int64

	for counter := uint32(0); ; counter++ {
		n, err := io.ReadFull(br, buf)
		last := false
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		case err != nil:
			return total, err
		default:
			if _, perr := br.Peek(1); errors.Is(perr, io.EOF) {
				last = true
			} else if perr != nil {
				return total, perr
			}
		}

		sealed = aead.Seal(sealed[:0], chunkNonce(prefix, counter), buf[:n], chunkAAD(last))
		if _, err := dst.Write(sealed); err != nil {
			return total, err
		}
		total += int64(n)

		if last {
			return total, nil
		}
		if counter == ^uint32(0) {
			return total, fmt.Errorf("%w: too many chunks", common.ErrInvalidArgument)
		}
	}
}

// Decrypt opens an artifact produced by Encrypt and writes the plaintext to
// dst. Every authentication or framing failure is reported as
// common.ErrCryptoIntegrity; plaintext written before a failure must be
// discarded by the caller.
func Decrypt(dst io.Writer, src io.Reader, key []byte) (int64, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, integrityErr("short header")
		}
		return 0, err
	}
	if !hmac.Equal(header[:4], magic) {
		return 0, integrityErr("bad magic")
	}
	chunkSize := int(binary.BigEndian.Uint32(header[4:8]))
	if chunkSize <= 0 || chunkSize > maxChunkSize {
		return 0, integrityErr("bad chunk size %d", chunkSize)
	}
	prefix := header[8 : 8+noncePrefixSize]
	if !hmac.Equal(header[8+noncePrefixSize:], commitment(key)) {
		return 0, integrityErr("key commitment mismatch")
	}

	aead, err := newGCM(key)
	if err != nil {
		return 0, err
	}

	br := bufio.NewReaderSize(src, chunkSize+tagSize)
	buf := make([]byte, chunkSize+tagSize)
	plain := make([]byte, 0, chunkSize)
	var total int64

	for counter := uint32(0); ; counter++ {
		n, err := io.ReadFull(br, buf)
		last := false
		switch {
		case errors.Is(err, io.EOF):
			return total, integrityErr("missing final chunk")
		case errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		case err != nil:
			return total, err
		default:
			if _, perr := br.Peek(1); errors.Is(perr, io.EOF) {
				last = true
			} else if perr != nil {
				return total, perr
			}
		}
		if n < tagSize {
			return total, integrityErr("short chunk %d", counter)
		}

		plain, err = aead.Open(plain[:0], chunkNonce(prefix, counter), buf[:n], chunkAAD(last))
		if err != nil {
			if !last {
				// a full-size final chunk followed by trailing bytes
				if _, lerr := aead.Open(nil, chunkNonce(prefix, counter), buf[:n], chunkAAD(true)); lerr == nil {
					return total, integrityErr("trailing data after final chunk")
				}
			}
			return total, integrityErr("chunk %d failed authentication", counter)
		}
		if _, err := dst.Write(plain); err != nil {
			return total, err
		}
		total += int64(len(plain))

		if last {
			return total, nil
		}
	}
}
