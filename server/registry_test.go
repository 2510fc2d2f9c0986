package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dashdash/server"
)

func TestIdentityRegistry(t *testing.T) {
	r := server.NewIdentityRegistry()

	assert.True(t, r.Register("a1"))
	assert.False(t, r.Register("a1"), "duplicate identity must be refused")
	assert.Equal(t, 1, r.Len())

	// 空身份从不去重
	assert.True(t, r.Register(""))
	assert.True(t, r.Register(""))
	assert.Equal(t, 1, r.Len())

	r.Release("a1")
	assert.False(t, r.Contains("a1"))
	assert.True(t, r.Register("a1"))

	r.Release("missing")
	assert.Equal(t, 1, r.Len())
}
