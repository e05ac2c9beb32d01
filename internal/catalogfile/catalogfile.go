// Package catalogfile reads product catalog files: a JSON array of
// {"name","description","price"} objects, optionally gzip-compressed.
package catalogfile

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/order-ledger/internal/domain/product"
)

const readBuffer = 64 << 10

// Decode streams the array in r, calling fn for every element in order.
// Unknown fields are skipped. Decoding stops at the first error from fn.
func Decode(r io.Reader, fn func(product.Descriptor) error) error {
	d := jx.Decode(r, readBuffer)
	idx := 0
	if err := d.Arr(func(d *jx.Decoder) error {
		var desc product.Descriptor
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() == jx.Null {
				return d.Null()
			}
			var err error
			switch key {
			case "name":
				desc.Name, err = d.Str()
			case "description":
				desc.Description, err = d.Str()
			case "price":
				desc.Price, err = d.Int64()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "element %d", idx)
		}
		idx++
		return fn(desc)
	}); err != nil {
		return errors.Wrap(err, "decode catalog")
	}
	return nil
}

type file struct {
	io.Reader
	closers []io.Closer
}

func (f *file) Close() error {
	var first error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens path for Decode, transparently decompressing ".gz" files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "gzip reader for %s", path)
	}
	return &file{Reader: gz, closers: []io.Closer{f, gz}}, nil
}
