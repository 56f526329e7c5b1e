package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "v1.2.3", Normalize("1.2.3"))
	assert.Equal(t, "v1.2.3", Normalize(" v1.2.3 "))
	assert.Equal(t, "", Normalize(""))
}

func TestIsRelease(t *testing.T) {
	assert.True(t, IsRelease("1.4.0"))
	assert.True(t, IsRelease("v2.0.0-rc.1"))
	assert.False(t, IsRelease("dev"))
	assert.False(t, IsRelease("abc1234"))
}

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.2", "abc1234"
	assert.Equal(t, "v1.2.0 (abc1234)", String())

	Version, Commit = "dev", "none"
	assert.Equal(t, "dev", String())
}
