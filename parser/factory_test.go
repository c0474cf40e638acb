package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("auto picks layout when healthy", func(t *testing.T) {
		srv := (&doclingStub{healthy: true}).server(t)

		p, err := New(KindAuto, Options{LayoutURL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, BackendLayout, p.Name())
		p.(*LayoutParser).Release()
	})

	t.Run("auto falls back to structural", func(t *testing.T) {
		srv := (&doclingStub{healthy: false}).server(t)

		p, err := New(KindAuto, Options{LayoutURL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, BackendStructural, p.Name())
	})

	t.Run("empty kind behaves like auto", func(t *testing.T) {
		p, err := New("", Options{})
		require.NoError(t, err)
		assert.Equal(t, BackendStructural, p.Name())
	})

	t.Run("explicit structural passes options", func(t *testing.T) {
		p, err := New(KindStructural, Options{Structural: []StructuralOption{WithPDFEngine(nil)}})
		require.NoError(t, err)
		require.IsType(t, &StructuralParser{}, p)
		assert.Nil(t, p.(*StructuralParser).engine)
	})

	t.Run("explicit layout is returned even when unavailable", func(t *testing.T) {
		p, err := New(KindLayout, Options{LayoutWorkers: 2})
		require.NoError(t, err)
		assert.Equal(t, BackendLayout, p.Name())
		assert.False(t, p.Available())
		p.(*LayoutParser).Release()
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New("ocr", Options{})
		assert.ErrorIs(t, err, ErrUnsupportedBackend)
	})
}
