// ABOUTME: Tests for media keys, the filesystem and S3 stores, and thumbnails
// ABOUTME: The S3 store runs against an httptest server speaking just enough of the API

package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/chat-gateway/internal/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "conversations/5511_c.us/wamid.1/photo.jpg", Key("conversations", "5511@c.us", "wamid.1", "photo.jpg"))
	assert.Equal(t, "avatars/c1.jpg", Key("avatars", " c1.jpg "))
	assert.Equal(t, "a/b", Key("a", "", "..", "b"))
	assert.Equal(t, "x_y_z", Key("x/y z"))
}

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "conversations/c1/m1/note.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "/media/conversations/c1/m1/note.txt", url)

	obj, err := s.Get(ctx, "conversations/c1/m1/note.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(obj.Data))
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/plain"))

	_, err = s.Get(ctx, "conversations/c1/m1/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/media")
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../secret", "a/../../b", "a//b", "."} {
		_, err := s.Put(ctx, key, []byte("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.MediaConfig{Driver: "none"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, config.MediaConfig{Driver: "fs", Dir: t.TempDir(), PublicURL: "/media"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = Open(ctx, config.MediaConfig{Driver: "ftp"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		for y := 0; y < 200; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := Thumbnail(buf.Bytes(), AvatarSize)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())

	_, err = Thumbnail([]byte("not an image"), AvatarSize)
	assert.Error(t, err)
}

func TestS3Store_URL(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.S3Config
		publicURL string
		want      string
	}{
		{"aws virtual host", config.S3Config{Bucket: "chat", Region: "sa-east-1"}, "", "https://chat.s3.sa-east-1.amazonaws.com/k.jpg"},
		{"aws path style", config.S3Config{Bucket: "chat", Region: "sa-east-1", PathStyle: true}, "", "https://s3.sa-east-1.amazonaws.com/chat/k.jpg"},
		{"dotted bucket forces path style", config.S3Config{Bucket: "chat.media"}, "", "https://s3.us-east-1.amazonaws.com/chat.media/k.jpg"},
		{"custom endpoint path style", config.S3Config{Bucket: "chat", Endpoint: "http://minio:9000/", PathStyle: true}, "", "http://minio:9000/chat/k.jpg"},
		{"custom endpoint virtual host", config.S3Config{Bucket: "chat", Endpoint: "https://objects.example.com"}, "", "https://chat.objects.example.com/k.jpg"},
		{"endpoint with bucket is cleaned", config.S3Config{Bucket: "chat", Endpoint: "https://chat.objects.example.com", PathStyle: true}, "", "https://objects.example.com/chat/k.jpg"},
		{"public url wins", config.S3Config{Bucket: "chat"}, "https://cdn.example.com/", "https://cdn.example.com/chat/k.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewS3Store(context.Background(), tt.cfg, tt.publicURL, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.URL("k.jpg"))
		})
	}

	_, err := NewS3Store(context.Background(), config.S3Config{}, "", zerolog.Nop())
	assert.Error(t, err)
}

// fakeS3 stores PUT bodies and serves them back on GET, path-style.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_PutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewS3Store(context.Background(), config.S3Config{
		Endpoint:  srv.URL,
		Bucket:    "chat",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		PathStyle: true,
	}, "", zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "avatars/c1.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/chat/avatars/c1.jpg", url)
	assert.Equal(t, "image/jpeg", fake.types["/chat/avatars/c1.jpg"])

	obj, err := s.Get(ctx, "avatars/c1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	_, err = s.Get(ctx, "avatars/none.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, ".ogg", ExtensionFor("audio/ogg; codecs=opus"))
	assert.Equal(t, ".bin", ExtensionFor(""))
}
