package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

func TestEncode_StructuredCloudEvent(t *testing.T) {
	data, err := Encode(models.NewFailure("run-a", "storage down"))
	require.NoError(t, err)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "1.0", envelope["specversion"])
	assert.Equal(t, EventSource, envelope["source"])
	assert.Equal(t, TypeError, envelope["type"])
	assert.Equal(t, "run-a", envelope["subject"])
	assert.NotEmpty(t, envelope["id"])
	assert.Equal(t, "application/json", envelope["datacontenttype"])

	payload, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "error", payload["kind"])
	assert.Equal(t, "storage down", payload["message"])
}

func TestDecode_ReturnsOriginalEvent(t *testing.T) {
	for _, ev := range []models.ProgressEvent{
		models.NewProgress("run-a", 45),
		models.NewComplete("run-a", "done"),
		models.NewFailure("run-a", "boom"),
	} {
		data, err := Encode(ev)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
