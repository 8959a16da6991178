// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// Codec is a blob compression algorithm. The codec of every blob is recorded
// in its first byte so blobs written with different codecs can coexist.
type Codec uint8

const (
	// CodecZstd compresses blobs with zstd. It is the default.
	CodecZstd Codec = 1

	// CodecLZ4 compresses blobs with the lz4 frame format.
	CodecLZ4 Codec = 2
)

// String implements [fmt.Stringer].
func (c Codec) String() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Codec(%d)", c)
	}
}

// ParseCodec returns the codec with the given name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "zstd", "":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

func (c Codec) valid() bool {
	return c == CodecZstd || c == CodecLZ4
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
	lz4ReaderPool   sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	// Lookups favour decode speed over ratio.
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	return enc
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
}

// compress returns a blob frame: the codec byte followed by the compressed
// stream of data.
func compress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case CodecZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, []byte{byte(c)}), nil
	case CodecLZ4:
		var buf bytes.Buffer
		buf.WriteByte(byte(c))
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown codec %v", c)
	}
}

// decompress decodes a blob frame whose decompressed content is exactly
// length bytes. The stream is never read past length+1 bytes so a corrupt or
// hostile blob cannot expand without bound.
func decompress(frame []byte, length int64) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", dicterrors.ErrBlobCorrupt)
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", dicterrors.ErrBlobCorrupt, length)
	}

	codec := Codec(frame[0])
	src := bytes.NewReader(frame[1:])

	var r io.Reader
	switch codec {
	case CodecZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zstdDecoderPool.Put(dec)
		if err := dec.Reset(src); err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", dicterrors.ErrBlobCorrupt, err)
		}
		r = dec
	case CodecLZ4:
		zr, _ := lz4ReaderPool.Get().(*lz4.Reader)
		if zr == nil {
			zr = lz4.NewReader(src)
		} else {
			zr.Reset(src)
		}
		defer lz4ReaderPool.Put(zr)
		r = zr
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", dicterrors.ErrBlobCorrupt, frame[0])
	}

	out := make([]byte, 0, min(length, 1<<20))
	buf := bytes.NewBuffer(out)
	n, err := buf.ReadFrom(io.LimitReader(r, length+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", dicterrors.ErrBlobCorrupt, codec, err)
	}
	if n != length {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", dicterrors.ErrBlobCorrupt, n, length)
	}
	return buf.Bytes(), nil
}
