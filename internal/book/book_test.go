package book

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		author    string
		status    Status
		wantField string
	}{
		{"valid unread", "Dune", "Herbert", StatusUnread, ""},
		{"valid finished", "1984", "Orwell", StatusFinished, ""},
		{"default status", "Emma", "Austen", "", ""},
		{"empty title", "", "Herbert", StatusUnread, "title"},
		{"whitespace title", "   \t", "Herbert", StatusUnread, "title"},
		{"empty author", "Dune", "", StatusUnread, "author"},
		{"whitespace author", "Dune", "  ", StatusReading, "author"},
		{"unknown status", "Dune", "Herbert", Status("lent"), "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.title, tt.author, tt.status)
			if tt.wantField != "" {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, b.Title)
			assert.Equal(t, tt.author, b.Author)
			if tt.status == "" {
				assert.Equal(t, StatusUnread, b.Status)
			} else {
				assert.Equal(t, tt.status, b.Status)
			}
			assert.Zero(t, b.ID)
		})
	}
}

func TestNew_TrimsWhitespace(t *testing.T) {
	b, err := New("  Dune ", "\tHerbert\n", StatusReading)
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Title)
	assert.Equal(t, "Herbert", b.Author)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"unread", StatusUnread, false},
		{"READING", StatusReading, false},
		{" Finished ", StatusFinished, false},
		{"", StatusUnread, false},
		{"done", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatusStrict(t *testing.T) {
	got, err := ParseStatusStrict(" Reading ")
	require.NoError(t, err)
	assert.Equal(t, StatusReading, got)

	for _, in := range []string{"", "  ", "done"} {
		_, err := ParseStatusStrict(in)
		assert.True(t, IsValidation(err), "input %q", in)
	}
}

func TestStatusNames(t *testing.T) {
	assert.Equal(t, "unread, reading, finished", StatusNames())

	_, err := ParseStatus("done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of unread, reading, finished")
}

func TestNormalize(t *testing.T) {
	b := Book{ID: 4, Title: "  Dune\t", Author: " Frank Herbert ", Status: ""}.Normalize()
	assert.Equal(t, Book{ID: 4, Title: "Dune", Author: "Frank Herbert", Status: StatusUnread}, b)

	finished := Book{Title: "Emma", Author: "Jane Austen", Status: StatusFinished}
	assert.Equal(t, finished, finished.Normalize())
}

func TestApply(t *testing.T) {
	current, err := New("Dune", "Herbert", StatusUnread)
	require.NoError(t, err)
	current.ID = 7

	t.Run("partial update keeps other fields", func(t *testing.T) {
		status := StatusReading
		updated, err := current.Apply(Patch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, ID(7), updated.ID)
		assert.Equal(t, "Dune", updated.Title)
		assert.Equal(t, "Herbert", updated.Author)
		assert.Equal(t, StatusReading, updated.Status)
		assert.Equal(t, StatusUnread, current.Status, "receiver must not change")
	})

	t.Run("invalid title is rejected", func(t *testing.T) {
		empty := " "
		updated, err := current.Apply(Patch{Title: &empty})
		assert.True(t, IsValidation(err))
		assert.Equal(t, current, updated)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		bad := Status("shelved")
		_, err := current.Apply(Patch{Status: &bad})
		assert.True(t, IsValidation(err))
	})

	t.Run("empty status is rejected", func(t *testing.T) {
		empty := Status("")
		updated, err := current.Apply(Patch{Status: &empty})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, current, updated)
	})

	t.Run("trims patched fields", func(t *testing.T) {
		title := "  Dune Messiah "
		updated, err := current.Apply(Patch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Dune Messiah", updated.Title)
	})

	t.Run("empty patch", func(t *testing.T) {
		assert.True(t, Patch{}.Empty())
		updated, err := current.Apply(Patch{})
		require.NoError(t, err)
		assert.Equal(t, current, updated)
	})
}

func TestIsValidation_Wrapped(t *testing.T) {
	err := fmt.Errorf("add book: %w", &ValidationError{Field: "title", Msg: "must not be empty"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "add book: invalid title: must not be empty", err.Error())
	assert.False(t, IsValidation(fmt.Errorf("other")))
}
