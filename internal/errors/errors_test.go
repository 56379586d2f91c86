package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{ErrConfig, ErrStoreCorruption, ErrNotFound, ErrTraversal}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code)
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  NewNotFound("run abc"),
			want: "run abc not found",
		},
		{
			name: "with cause",
			err:  Wrap(fmt.Errorf("unexpected EOF"), ErrStoreCorruption, "malformed metrics.json"),
			want: "malformed metrics.json: unexpected EOF",
		},
		{
			name: "with suggestion",
			err:  NewConfig([]string{"lr", "num_epochs"}),
			want: "missing required config keys: lr, num_epochs (Add the keys to the config file passed with --config)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsCode(t *testing.T) {
	base := NewTraversal("../etc/passwd")
	wrapped := fmt.Errorf("serve file: %w", base)

	assert.True(t, IsCode(base, ErrTraversal))
	assert.True(t, IsCode(wrapped, ErrTraversal))
	assert.False(t, IsCode(wrapped, ErrNotFound))
	assert.False(t, IsCode(nil, ErrTraversal))
	assert.False(t, IsCode(errors.New("plain"), ErrTraversal))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("file")))
	assert.True(t, IsNotFound(NewTraversal("..")))
	assert.False(t, IsNotFound(NewConfig([]string{"x"})))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, ErrStoreCorruption, "write failed")
	assert.ErrorIs(t, err, cause)
}
