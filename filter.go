// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/pdf-xtract/logger"
	tifflzw "golang.org/x/image/tiff/lzw"
)

// maxDecodedSize bounds the output of a single filter.
const maxDecodedSize = 256 << 20

// A Decoder reverses one PDF stream filter.
type Decoder interface {
	Name() string
	Decode(in []byte, params Value) ([]byte, error)
}

var decoders = map[string]Decoder{}

func registerDecoder(d Decoder, aliases ...string) {
	decoders[d.Name()] = d
	for _, a := range aliases {
		decoders[a] = d
	}
}

func init() {
	registerDecoder(flateDecoder{}, "Fl")
	registerDecoder(lzwDecoder{}, "LZW")
	registerDecoder(ascii85Decoder{}, "A85")
	registerDecoder(asciiHexDecoder{}, "AHx")
	registerDecoder(runLengthDecoder{}, "RL")
	registerDecoder(passDecoder("DCTDecode"), "DCT")
	registerDecoder(passDecoder("JPXDecode"))
	registerDecoder(passDecoder("JBIG2Decode"))
	registerDecoder(passDecoder("CCITTFaxDecode"), "CCF")
	registerDecoder(cryptDecoder{})
}

// Decode applies the named filter to raw. Image filters return their input
// unchanged; the caller decides what to do with the compressed image.
func Decode(raw []byte, filter string, params Value) ([]byte, error) {
	d, ok := decoders[filter]
	if !ok {
		return nil, &UnsupportedFilter{Filter: filter}
	}
	return d.Decode(raw, params)
}

// decodeFilters applies a filter chain left to right.
func decodeFilters(data []byte, filters []string, params []Value) ([]byte, error) {
	for i, f := range filters {
		var p Value
		if i < len(params) {
			p = params[i]
		}
		out, err := Decode(data, f, p)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// readLimited reads rd to the end, failing once maxDecodedSize is exceeded.
// The bytes read before an error are returned with it.
func readLimited(rd io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rd, maxDecodedSize+1))
	if n > maxDecodedSize {
		return nil, fmt.Errorf("decoded data exceeds %d bytes", maxDecodedSize)
	}
	return buf.Bytes(), err
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(in []byte, params Value) ([]byte, error) {
	var rd io.Reader
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		// Some producers omit the zlib header.
		rd = flate.NewReader(bytes.NewReader(in))
	} else {
		defer zr.Close()
		rd = zr
	}
	out, err := readLimited(rd)
	if err != nil {
		if len(out) == 0 || !(errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum)) {
			return nil, &CorruptStream{Filter: "FlateDecode", Err: err}
		}
		logger.Debug(fmt.Sprintf("filter: FlateDecode kept %d bytes of a truncated stream: %v", len(out), err))
	}
	return applyPredictor(out, params, "FlateDecode")
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(in []byte, params Value) ([]byte, error) {
	var rd io.ReadCloser
	if early := params.Key("EarlyChange"); early.Kind() == Integer && early.Int64() == 0 {
		rd = lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	} else {
		rd = tifflzw.NewReader(bytes.NewReader(in), tifflzw.MSB, 8)
	}
	defer rd.Close()
	out, err := readLimited(rd)
	if err != nil && len(out) == 0 {
		return nil, &CorruptStream{Filter: "LZWDecode", Err: err}
	}
	return applyPredictor(out, params, "LZWDecode")
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(in []byte, _ Value) ([]byte, error) {
	out, err := readLimited(ascii85.NewDecoder(newAlphaReader(bytes.NewReader(in))))
	if err != nil {
		return nil, &CorruptStream{Filter: "ASCII85Decode", Err: err}
	}
	return out, nil
}

// alphaReader feeds an ASCII85 decoder: it blanks every byte outside the
// ASCII85 alphabet and ends the data at the ~> terminator.
type alphaReader struct {
	r    io.Reader
	done bool
}

func newAlphaReader(r io.Reader) *alphaReader {
	return &alphaReader{r: r}
}

func (a *alphaReader) Read(p []byte) (int, error) {
	if a.done {
		return 0, io.EOF
	}
	n, err := a.r.Read(p)
	for i := 0; i < n; i++ {
		c := p[i]
		switch {
		case a.done:
			p[i] = 0
		case c == '~':
			a.done = true
			p[i] = 0
		case '!' <= c && c <= 'u', c == 'z', isSpace(c):
		default:
			p[i] = 0
		}
	}
	return n, err
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(in []byte, _ Value) ([]byte, error) {
	out := make([]byte, 0, len(in)/2)
	hi := -1
	for i, c := range in {
		if c == '>' {
			break
		}
		if isSpace(c) {
			continue
		}
		x := unhex(c)
		if x < 0 {
			return nil, &CorruptStream{Filter: "ASCIIHexDecode", Err: fmt.Errorf("invalid hex digit %q at %d", c, i)}
		}
		if hi < 0 {
			hi = x
			continue
		}
		out = append(out, byte(hi<<4|x))
		hi = -1
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	return out, nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(in []byte, _ Value) ([]byte, error) {
	var out []byte
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, &CorruptStream{Filter: "RunLengthDecode", Err: io.ErrUnexpectedEOF}
			}
			out = append(out, in[i:end]...)
			i = end
		default:
			if i >= len(in) {
				return nil, &CorruptStream{Filter: "RunLengthDecode", Err: io.ErrUnexpectedEOF}
			}
			out = append(out, bytes.Repeat(in[i:i+1], 257-n)...)
			i++
		}
		if len(out) > maxDecodedSize {
			return nil, &CorruptStream{Filter: "RunLengthDecode", Err: errors.New("decoded data too large")}
		}
	}
	return out, nil
}

// passDecoder leaves image data encoded.
type passDecoder string

func (d passDecoder) Name() string { return string(d) }

func (passDecoder) Decode(in []byte, _ Value) ([]byte, error) { return in, nil }

type cryptDecoder struct{}

func (cryptDecoder) Name() string { return "Crypt" }

func (cryptDecoder) Decode(in []byte, params Value) ([]byte, error) {
	if n := params.Key("Name").Name(); n != "" && n != "Identity" {
		return nil, &UnsupportedFilter{Filter: "Crypt/" + n}
	}
	return in, nil
}

// applyPredictor undoes a TIFF or PNG predictor described by params.
func applyPredictor(data []byte, params Value, filter string) ([]byte, error) {
	pred := params.Key("Predictor").Int64()
	if pred <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 || bpp <= 0 {
		return nil, &CorruptStream{Filter: filter, Err: errors.New("invalid predictor parameters")}
	}

	switch {
	case pred == 2:
		if bpc != 8 {
			return nil, &CorruptStream{Filter: filter, Err: fmt.Errorf("TIFF predictor with %d bits per component", bpc)}
		}
		out := append([]byte(nil), data...)
		for row := 0; row < len(out); row += rowLen {
			end := row + rowLen
			if end > len(out) {
				end = len(out)
			}
			for i := row + bpp; i < end; i++ {
				out[i] += out[i-bpp]
			}
		}
		return out, nil
	case pred >= 10 && pred <= 15:
		return pngUnpredict(data, rowLen, bpp, filter)
	}
	return nil, &CorruptStream{Filter: filter, Err: fmt.Errorf("unknown predictor %d", pred)}
}

func intParam(params Value, key string, def int) int {
	v := params.Key(key)
	if v.Kind() != Integer || v.Int64() <= 0 {
		return def
	}
	return int(v.Int64())
}

// pngUnpredict reverses per-row PNG filtering. Each row starts with its
// filter type byte.
func pngUnpredict(data []byte, rowLen, bpp int, filter string) ([]byte, error) {
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for len(data) > 0 {
		typ := data[0]
		n := copy(cur, data[1:])
		if 1+rowLen > len(data) {
			data = nil
		} else {
			data = data[1+rowLen:]
		}
		for i := n; i < rowLen; i++ {
			cur[i] = 0
		}
		switch typ {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, &CorruptStream{Filter: filter, Err: fmt.Errorf("invalid PNG filter type %d", typ)}
		}
		out = append(out, cur[:n]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
