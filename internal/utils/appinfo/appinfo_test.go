package appinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionPrefersLinkerValue(t *testing.T) {
	t.Setenv("APP_VERSION", "from-env")

	Version = "1.2.3"
	t.Cleanup(func() { Version = "" })
	assert.Equal(t, "1.2.3", GetVersion())

	Version = ""
	assert.Equal(t, "from-env", GetVersion())
}

func TestGetVersionFallback(t *testing.T) {
	t.Setenv("APP_VERSION", "")
	assert.NotEmpty(t, GetVersion())
}
