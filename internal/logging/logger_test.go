package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+15****4567", MaskPhone("+15551234567"))
	assert.Equal(t, "***", MaskPhone("+1555"))
	assert.Equal(t, "phone", Phone("phone", "+15551234567").Key)
}
