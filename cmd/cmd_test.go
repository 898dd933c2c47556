package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/config"
	"github.com/veyralabs/fitlens/internal/store"
)

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, Version+"\n", buf.String())
}

func TestProductsCommandEmptyStore(t *testing.T) {
	cfg = *config.NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "fitlens.db")

	cmd := newProductsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no captured products")
}

func TestProductsCommandListsCaptures(t *testing.T) {
	cfg = *config.NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "fitlens.db")

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store.Path, zap.NewNop())
	require.NoError(t, err)
	_, err = st.UpsertProduct(ctx, schemas.ProductMetadata{
		ID:        "product-7",
		Name:      "Arctic Parka",
		ImageURL:  "data:image/jpeg;base64,aW1n",
		SourceURL: "https://shop.example.com/products/parka",
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd := newProductsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "product-7")
	assert.Contains(t, out, "Arctic Parka")
	assert.Contains(t, out, "https://shop.example.com/products/parka")
}

func TestDefaultConfigValues(t *testing.T) {
	c := config.NewDefaultConfig()
	assert.Equal(t, "gemini-2.5-flash-image", c.TryOn.Model)
	assert.Equal(t, "127.0.0.1:8787", c.UI.ListenAddr)
	assert.Equal(t, "fitlens.db", c.Store.Path)
	assert.NotEmpty(t, c.TryOn.Prompt)
}
