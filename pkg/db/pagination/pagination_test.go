package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimReportsNextCursor(t *testing.T) {
	items := []int{1, 2, 3, 4}
	page, info := Trim(items, 3, strconv.Itoa)

	assert.Equal(t, []int{1, 2, 3}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "3", cursor.ID)
}

func TestTrimLastPage(t *testing.T) {
	page, info := Trim([]int{1, 2}, 3, strconv.Itoa)
	assert.Equal(t, []int{1, 2}, page)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.Error(t, err)
}
