package rss

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSFeedUnmarshalsItems(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rss><channel>
  <item><guid>abc-1</guid><link>https://example.com/1</link><title>First</title></item>
  <item><guid>abc-2</guid><link>https://example.com/2</link><title>Second</title></item>
</channel></rss>`

	var feed rssFeed
	require.NoError(t, xml.Unmarshal([]byte(doc), &feed))
	require.Len(t, feed.Channel.Items, 2)
	assert.Equal(t, "abc-1", feed.Channel.Items[0].GUID)
	assert.Equal(t, "Second", feed.Channel.Items[1].Title)
}

func TestRSSFeedEmptyChannelHasNoItems(t *testing.T) {
	var feed rssFeed
	require.NoError(t, xml.Unmarshal([]byte(`<rss><channel></channel></rss>`), &feed))
	assert.Empty(t, feed.Channel.Items)
}
