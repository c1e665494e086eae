package skillfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	meta := Meta{
		Name:        "summarizer",
		Description: "Summarizes long text",
		Tags:        []string{"text", "productivity"},
		Visibility:  "public",
		Version:     3,
	}
	content := "# Summarizer\n\nAlways answer in three bullet points.\n"

	data, err := Encode(meta, content)
	require.NoError(t, err)

	gotMeta, gotContent, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, meta, gotMeta)
	require.Equal(t, content, gotContent)
}

func TestDecodeRejectsMissingFrontMatter(t *testing.T) {
	_, _, err := Decode([]byte("just markdown, no front matter"))
	require.Error(t, err)
}

func TestDecodeRejectsMissingName(t *testing.T) {
	_, _, err := Decode([]byte("---\ndescription: no name\n---\nbody\n"))
	require.Error(t, err)
}

func TestEncodeRequiresName(t *testing.T) {
	_, err := Encode(Meta{}, "content")
	require.Error(t, err)
}

func TestLoadSystemContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("second rule"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.skill"), []byte("first rule\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not loaded"), 0o644))

	ctx, err := LoadSystemContext(dir)
	require.NoError(t, err)
	require.Equal(t, "first rule\n\nsecond rule", ctx)
}

func TestLoadSystemContextMissingDir(t *testing.T) {
	ctx, err := LoadSystemContext(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, ctx)
}
