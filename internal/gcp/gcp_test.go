package gcp

import (
	"crypto/md5"
	"fmt"
	"hash/crc32"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("STICKER_TEST_INT", "42")
	t.Setenv("STICKER_TEST_BAD_INT", "forty")
	t.Setenv("STICKER_TEST_DURATION", "750ms")
	t.Setenv("STICKER_TEST_BOOL", "true")
	t.Setenv("STICKER_TEST_EMPTY", "")

	assert.Equal(t, "fallback", GetEnv("STICKER_TEST_UNSET", "fallback"))
	assert.Equal(t, "", GetEnv("STICKER_TEST_EMPTY", "fallback"))
	assert.Equal(t, 42, GetEnvInt("STICKER_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("STICKER_TEST_BAD_INT", 1))
	assert.Equal(t, 750*time.Millisecond, GetEnvDuration("STICKER_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("STICKER_TEST_EMPTY", time.Second))
	assert.True(t, GetEnvBool("STICKER_TEST_BOOL", false))
	assert.True(t, GetEnvBool("STICKER_TEST_UNSET", true))
}

func TestIsPreconditionFailed(t *testing.T) {
	precondition := &googleapi.Error{Code: http.StatusPreconditionFailed}

	assert.True(t, isPreconditionFailed(precondition))
	assert.True(t, isPreconditionFailed(fmt.Errorf("wrapped: %w", precondition)))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(fmt.Errorf("plain")))
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("  [{\"gtin\":"),
				genai.Blob{MIMEType: "image/png"},
				genai.Text("\"A\"}]  "),
			}},
		}},
	}
	assert.Equal(t, `[{"gtin":"A"}]`, responseText(resp))
}

func TestSameContent(t *testing.T) {
	stored := []byte("tray photo, take 1")
	sum := md5.Sum(stored)
	withMD5 := &storage.ObjectAttrs{Size: int64(len(stored)), MD5: sum[:]}
	composite := &storage.ObjectAttrs{
		Size:   int64(len(stored)),
		CRC32C: crc32.Checksum(stored, crc32.MakeTable(crc32.Castagnoli)),
	}

	assert.True(t, sameContent(withMD5, stored))
	assert.True(t, sameContent(composite, stored))

	reshot := []byte("tray photo, take 2")
	assert.False(t, sameContent(withMD5, reshot))
	assert.False(t, sameContent(composite, reshot))
	assert.False(t, sameContent(withMD5, stored[:5]))
}
