package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voicecollect/internal/session"
	"voicecollect/internal/storage"
)

type put struct {
	name, contentType string
	data              []byte
}

type fakeBucket struct {
	mu   sync.Mutex
	puts []put
	err  error
}

func (f *fakeBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (storage.Object, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, put{name, contentType, data})
	if f.err != nil {
		return storage.Object{}, f.err
	}
	return storage.Object{Name: name, ContentType: contentType, Size: int64(len(data))}, nil
}

func (f *fakeBucket) Close() error { return nil }

func TestSecureFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"apple_abc_def.ogg", "apple_abc_def.ogg"},
		{"../../etc/passwd", "etc_passwd"},
		{`..\..\windows`, "windows"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"tab\there\x00nul", "tab_herenul"},
		{"___", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SecureFilename(tc.in), "input %q", tc.in)
	}
}

var clipName = regexp.MustCompile(`^apple_[0-9a-f]{32}_[0-9a-f]{32}\.ogg$`)

func TestObjectName(t *testing.T) {
	sid := session.NewID()

	name, err := ObjectName("apple", sid)
	require.NoError(t, err)
	assert.Regexp(t, clipName, name)
	assert.Contains(t, name, sid)

	name, err = ObjectName("../../etc", sid)
	require.NoError(t, err)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
	assert.True(t, strings.HasPrefix(name, "etc_"+sid+"_"), name)

	_, err = ObjectName("", sid)
	assert.ErrorIs(t, err, ErrEmptyWord)

	_, err = ObjectName("apple", "")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = ObjectName("apple", strings.Repeat("f", 2000))
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = ObjectName(strings.Repeat("a", MaxWordLength+1), sid)
	assert.ErrorIs(t, err, ErrWordTooLong)

	name, err = ObjectName(strings.Repeat("a", MaxWordLength), sid)
	require.NoError(t, err)
	assert.Less(t, len(name), 1024)
}

func TestServiceSave(t *testing.T) {
	bucket := &fakeBucket{}
	svc := NewService(bucket, zaptest.NewLogger(t))

	obj, err := svc.Save(context.Background(), "apple", session.NewID(), bytes.NewReader([]byte{0x00, 0x01}))
	require.NoError(t, err)

	require.Len(t, bucket.puts, 1)
	assert.Regexp(t, clipName, bucket.puts[0].name)
	assert.Equal(t, "audio/ogg", bucket.puts[0].contentType)
	assert.Equal(t, []byte{0x00, 0x01}, bucket.puts[0].data)
	assert.Equal(t, bucket.puts[0].name, obj.Name)
}

func TestServiceSaveStorageError(t *testing.T) {
	boom := errors.New("quota exceeded")
	bucket := &fakeBucket{err: boom}
	svc := NewService(bucket, zaptest.NewLogger(t))

	_, err := svc.Save(context.Background(), "apple", session.NewID(), strings.NewReader("x"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, bucket.puts, 1)
}

func TestServiceSaveRejectsWithoutWrite(t *testing.T) {
	bucket := &fakeBucket{}
	svc := NewService(bucket, nil)

	_, err := svc.Save(context.Background(), "apple", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, bucket.puts)
}

func TestConcurrentSavesNeverCollide(t *testing.T) {
	bucket := &fakeBucket{}
	svc := NewService(bucket, nil)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Save(context.Background(), "apple", session.NewID(), strings.NewReader("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range bucket.puts {
		assert.False(t, seen[p.name], "collision on %s", p.name)
		seen[p.name] = true
	}
	assert.Len(t, seen, n)
}
