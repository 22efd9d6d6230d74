package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type gcsInsert struct {
	path       string
	uploadType string
	object     struct {
		Name        string            `json:"name"`
		ContentType string            `json:"contentType"`
		Metadata    map[string]string `json:"metadata"`
	}
	media []byte
}

// fakeGCS answers JSON API multipart object inserts.
type fakeGCS struct {
	mu      sync.Mutex
	inserts []gcsInsert
	status  int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.status != 0 {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, f.status)
		return
	}

	ins := gcsInsert{path: r.URL.Path, uploadType: r.URL.Query().Get("uploadType")}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.NewDecoder(part).Decode(&ins.object); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	part, err = mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ins.media, _ = io.ReadAll(part)

	f.mu.Lock()
	f.inserts = append(f.inserts, ins)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"bucket":      "clips",
		"name":        ins.object.Name,
		"contentType": ins.object.ContentType,
		"metadata":    ins.object.Metadata,
		"size":        strconv.Itoa(len(ins.media)),
	})
}

func newTestGCSBucket(t *testing.T, fake *fakeGCS) *GCSBucket {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewGCSBucket(context.Background(), "clips",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestGCSBucketPut(t *testing.T) {
	fake := &fakeGCS{}
	b := newTestGCSBucket(t, fake)

	payload := []byte{0x00, 0x01}
	obj, err := b.Put(context.Background(), "apple_x_y.ogg", "audio/ogg", strings.NewReader(string(payload)))
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	assert.Equal(t, "clips", obj.Bucket)
	assert.Equal(t, "apple_x_y.ogg", obj.Name)
	assert.Equal(t, int64(2), obj.Size)
	assert.Equal(t, sum, obj.Checksum)

	require.Len(t, fake.inserts, 1)
	ins := fake.inserts[0]
	assert.Equal(t, "/upload/storage/v1/b/clips/o", ins.path)
	assert.Equal(t, "multipart", ins.uploadType)
	assert.Equal(t, "apple_x_y.ogg", ins.object.Name)
	assert.Equal(t, "audio/ogg", ins.object.ContentType)
	assert.Equal(t, hex.EncodeToString(sum[:]), ins.object.Metadata["sha256"])
	assert.Equal(t, payload, ins.media)
}

func TestGCSBucketPutServerError(t *testing.T) {
	fake := &fakeGCS{status: http.StatusForbidden}
	b := newTestGCSBucket(t, fake)

	_, err := b.Put(context.Background(), "apple_x_y.ogg", "audio/ogg", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gs://clips/apple_x_y.ogg")
}

func TestGCSBucketRejectsUnsafeNames(t *testing.T) {
	fake := &fakeGCS{}
	b := newTestGCSBucket(t, fake)

	_, err := b.Put(context.Background(), "../etc", "audio/ogg", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, fake.inserts)
}
