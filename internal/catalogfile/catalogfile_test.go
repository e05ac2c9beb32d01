package catalogfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-ledger/internal/domain/product"
)

const sample = `[
  {"name": "Sprite", "description": "Lemon lime soda", "price": 1000, "sku": "X1"},
  {"name": "Flan", "description": null, "price": 4500, "tags": ["dessert", {"k": 1}]}
]`

func collect(t *testing.T, in string) ([]product.Descriptor, error) {
	t.Helper()
	var out []product.Descriptor
	err := Decode(strings.NewReader(in), func(d product.Descriptor) error {
		out = append(out, d)
		return nil
	})
	return out, err
}

func TestDecode(t *testing.T) {
	got, err := collect(t, sample)
	require.NoError(t, err)
	assert.Equal(t, []product.Descriptor{
		{Name: "Sprite", Description: "Lemon lime soda", Price: 1000},
		{Name: "Flan", Price: 4500},
	}, got)
}

func TestDecode_Errors(t *testing.T) {
	_, err := collect(t, `[{"name": "Sprite", "price": "cheap"}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 0")
	assert.Contains(t, err.Error(), "price")

	_, err = collect(t, `{"name": "Sprite"}`)
	require.Error(t, err)

	stop := errors.New("stop")
	calls := 0
	err = Decode(strings.NewReader(sample), func(product.Descriptor) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestOpen_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	rc, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	var names []string
	require.NoError(t, Decode(rc, func(d product.Descriptor) error {
		names = append(names, d.Name)
		return nil
	}))
	assert.Equal(t, []string{"Sprite", "Flan"}, names)
}

func TestOpen_Plain(t *testing.T) {
	rc, err := Open(filepath.Join("..", "..", "db", "seed", "products.json"))
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	n := 0
	require.NoError(t, Decode(rc, func(d product.Descriptor) error {
		n++
		assert.NoError(t, product.ValidateName(d.Name))
		assert.NoError(t, product.ValidatePrice(d.Price))
		return nil
	}))
	assert.Equal(t, 5, n)
}
