package mbox

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-to-json/model"
)

//go:embed testdata/sample.mbox
var sampleMbox []byte

type countingOpener struct {
	data  []byte
	opens int
}

func (c *countingOpener) open() (io.ReadCloser, error) {
	c.opens++
	return io.NopCloser(bytes.NewReader(c.data)), nil
}

func newSampleStore(t *testing.T) (*Store, *countingOpener) {
	t.Helper()
	opener := &countingOpener{data: sampleMbox}
	store := NewStore(opener.open, int64(len(sampleMbox)), nil)
	t.Cleanup(func() { store.Close() })
	return store, opener
}

func TestStoreLen(t *testing.T) {
	store, opener := newSampleStore(t)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = store.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, opener.opens, "count is cached")
	assert.Equal(t, int64(len(sampleMbox)), store.Size())
}

func TestStoreGetSequential(t *testing.T) {
	store, opener := newSampleStore(t)

	subjects := []string{"Subject: Hello", "Subject: Quarterly report", "Subject: Newsletter with logo", "Subject: =?ISO-8859-1?Q?Gr=FC=DFe_aus_K=F6ln?="}
	for i, subject := range subjects {
		doc, err := store.Get(i)
		require.NoError(t, err)
		assert.Equal(t, i, doc.Index)
		assert.Contains(t, string(doc.Raw), subject)
	}
	assert.Equal(t, 1, opener.opens)

	_, err := store.Get(4)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
}

func TestStoreGetSkipsAndRewinds(t *testing.T) {
	store, opener := newSampleStore(t)

	doc, err := store.Get(2)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), "Newsletter with logo")
	assert.Equal(t, 1, opener.opens)

	doc, err = store.Get(3)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), "Message-ID: <m3@example.com>")
	assert.Equal(t, 1, opener.opens)

	doc, err = store.Get(0)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), "Message-ID: <m0@example.com>")
	assert.Equal(t, 2, opener.opens, "going back reopens the archive")

	doc, err = store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Index)
	assert.Equal(t, 3, opener.opens)
}

func TestStoreGetAfterEnd(t *testing.T) {
	store, _ := newSampleStore(t)

	_, err := store.Get(10)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	_, err = store.Get(-1)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	doc, err := store.Get(1)
	require.NoError(t, err, "store recovers after running off the end")
	assert.Contains(t, string(doc.Raw), "report.pdf")
}

func TestStoreEmpty(t *testing.T) {
	store := NewStore(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}, 0, nil)
	defer store.Close()

	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.Get(0)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
}

func TestStoreOpenError(t *testing.T) {
	openErr := errors.New("permission denied")
	store := NewStore(func() (io.ReadCloser, error) { return nil, openErr }, 0, nil)

	_, err := store.Len()
	assert.ErrorIs(t, err, openErr)

	_, err = store.Get(0)
	assert.ErrorIs(t, err, openErr)
}

func TestStoreClosed(t *testing.T) {
	store, _ := newSampleStore(t)
	_, err := store.Get(0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Get(1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Len()
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.mbox")
	require.NoError(t, os.WriteFile(path, sampleMbox, 0o600))

	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(len(sampleMbox)), store.Size())

	doc, err := store.Get(1)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Raw), "Quarterly report")
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(" ", nil)
	assert.ErrorIs(t, err, ErrPathEmpty)

	_, err = Open(filepath.Join(t.TempDir(), "missing.mbox"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Open(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNotAFile)
}

func BenchmarkStoreGetSequential(b *testing.B) {
	opener := &countingOpener{data: sampleMbox}
	for i := 0; i < b.N; i++ {
		store := NewStore(opener.open, int64(len(sampleMbox)), nil)
		for j := 0; j < 4; j++ {
			if _, err := store.Get(j); err != nil {
				b.Fatal(err)
			}
		}
		store.Close()
	}
}
