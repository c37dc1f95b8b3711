package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() Manifest {
	return Manifest{
		Name:    "rss",
		Version: "1.0.0",
		Queues:  []string{"rss"},
		Jobs: []JobSpec{
			{Name: "poll", Queue: "rss", Schedule: "*/5 * * * *"},
		},
		Settings: []SettingSpec{
			{Key: "feed_url", Type: SettingString, Required: true},
			{Key: "poll_interval_seconds", Type: SettingNumber, Default: "300"},
		},
	}
}

func TestManifestValidateOK(t *testing.T) {
	require.NoError(t, validManifest().Validate())
}

func TestManifestValidateBadName(t *testing.T) {
	m := validManifest()
	m.Name = "RSS-Feed!"
	assert.Error(t, m.Validate())
}

func TestManifestValidateNoQueues(t *testing.T) {
	m := validManifest()
	m.Queues = nil
	assert.Error(t, m.Validate())
}

func TestManifestValidateJobUndeclaredQueue(t *testing.T) {
	m := validManifest()
	m.Jobs[0].Queue = "ghost"
	assert.Error(t, m.Validate())
}

func TestManifestValidateUnknownSettingType(t *testing.T) {
	m := validManifest()
	m.Settings[0].Type = "bogus"
	assert.Error(t, m.Validate())
}
