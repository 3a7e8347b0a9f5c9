package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
	"hybridrag/internal/source/jsonpages"
	"hybridrag/internal/source/pdf"
)

func TestForPath(t *testing.T) {
	src, err := ForPath("books/Science.PDF")
	require.NoError(t, err)
	assert.IsType(t, &pdf.Source{}, src)

	src, err = ForPath("dump.json")
	require.NoError(t, err)
	assert.IsType(t, &jsonpages.Source{}, src)

	_, err = ForPath("notes.txt")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}
