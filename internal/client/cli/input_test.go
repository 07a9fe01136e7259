package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPasswords(t *testing.T, pw ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	readPassword = func(int) ([]byte, error) {
		if len(pw) == 0 {
			return nil, errors.New("no more input")
		}
		next := pw[0]
		pw = pw[1:]
		return []byte(next), nil
	}
}

func TestGetPassword(t *testing.T) {
	stubPasswords(t, "s3cret")

	var out bytes.Buffer
	pw, err := GetPassword(&out, "Vault password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(pw))
	assert.Equal(t, "Vault password: \n", out.String())
}

func TestGetPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}

	var out bytes.Buffer
	_, err := GetPassword(&out, "Vault password")
	assert.Error(t, err)
}
