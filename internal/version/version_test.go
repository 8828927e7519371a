package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	defer func(v, sha, bt string) { Version, GitSHA, BuildTime = v, sha, bt }(Version, GitSHA, BuildTime)

	assert.Equal(t, Info{Version: "dev", GitSHA: "unknown", BuildTime: "unknown"}, Get())

	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2025-06-01T00:00:00Z"
	info := Get()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "1.2.0 (abc123, built 2025-06-01T00:00:00Z)", info.String())
}
