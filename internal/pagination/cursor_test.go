package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)
	token := EncodeCursor("abc", ts)
	require.NotEmpty(t, token)

	c, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "abc", c.LastID)
	assert.True(t, ts.Equal(c.Timestamp))
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, token := range []string{"%%%", "bm9waXBl", "fHRpbWU="} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}

	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: DefaultLimit},
		{in: "5", want: 5},
		{in: "1000", want: MaxLimit},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "ten", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidLimit, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

type item struct {
	id string
	at time.Time
}

func TestPage(t *testing.T) {
	now := time.Now().UTC()
	items := []item{{"a", now}, {"b", now.Add(-time.Second)}, {"c", now.Add(-2 * time.Second)}}
	getID := func(i item) string { return i.id }
	getTS := func(i item) time.Time { return i.at }

	page := Page(items, 2, getID, getTS)
	assert.True(t, page.HasMore)
	assert.Len(t, page.Items, 2)

	c, err := DecodeCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", c.LastID)

	last := Page(items, 3, getID, getTS)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)
}
