package unlock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/hashing"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(frame []byte) ([]types.FaceResult, error) {
	switch string(frame) {
	case "owner":
		return []types.FaceResult{{Loc: [4]int{0, 0, 4, 4}, Vec: []float64{0, 0}}}, nil
	case "stranger":
		return []types.FaceResult{{Loc: [4]int{0, 0, 4, 4}, Vec: []float64{50, 50}}}, nil
	}
	return nil, nil
}

// scripted returns canned answers in order.
type scripted struct {
	answers []string
	asked   int
}

func (s *scripted) Prompt(string) (string, error) {
	if s.asked >= len(s.answers) {
		return "", io.EOF
	}
	s.asked++
	return s.answers[s.asked-1], nil
}

func newUnlocker(t *testing.T, p Prompter, out io.Writer) *Unlocker {
	t.Helper()
	g := identity.NewGallery()
	require.NoError(t, g.Add("Owner", identity.Embedding{0, 0}))
	r := recognize.New(g, stubEmbedder{}, 0.7)
	r.Out = io.Discard
	u := New(r, p)
	u.Out = out
	return u
}

func source(names ...string) *capture.MemorySource {
	frames := make([][]byte, len(names))
	for i, n := range names {
		frames[i] = []byte(n)
	}
	return capture.NewMemorySource("cam", 0, frames...)
}

func TestLaunch(t *testing.T) {
	ctx := context.Background()

	t.Run("owner unlocks", func(t *testing.T) {
		var out bytes.Buffer
		u := newUnlocker(t, nil, &out)
		ok, err := u.Launch(ctx, source("stranger", "empty", "owner"), 10)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, out.String(), "Hi, Owner")
	})

	t.Run("attempt budget", func(t *testing.T) {
		var out bytes.Buffer
		u := newUnlocker(t, nil, &out)
		src := source("stranger", "stranger", "stranger", "owner")
		ok, err := u.Launch(ctx, src, 3)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, out.String(), "Too many attempts")

		// The owner frame was never read.
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "owner", string(f.Data))
	})

	t.Run("source ends", func(t *testing.T) {
		u := newUnlocker(t, nil, io.Discard)
		ok, err := u.Launch(ctx, source("stranger"), 10)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty gallery", func(t *testing.T) {
		u := New(recognize.New(identity.NewGallery(), stubEmbedder{}, 0.7), nil)
		_, err := u.Launch(ctx, source("owner"), 10)
		assert.ErrorIs(t, err, recognize.ErrNoIdentities)
	})
}

func TestUnlock_PasswordFallback(t *testing.T) {
	ctx := context.Background()
	digest, err := hashing.Hash("hunter2", "sha512")
	require.NoError(t, err)

	t.Run("third password is right", func(t *testing.T) {
		var out bytes.Buffer
		p := &scripted{answers: []string{"a", "b", "hunter2"}}
		u := newUnlocker(t, p, &out)
		require.NoError(t, u.SetPassword(digest, "sha512"))

		ok, err := u.Unlock(ctx, source("stranger"), Options{Attempts: 1, PasswordAttempts: 3})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, p.asked)
		assert.Contains(t, out.String(), "You have 2 attempts\n")
		assert.Contains(t, out.String(), "You have last one attempt\n")
	})

	t.Run("out of passwords", func(t *testing.T) {
		p := &scripted{answers: []string{"a", "b", "c", "hunter2"}}
		u := newUnlocker(t, p, io.Discard)
		require.NoError(t, u.SetPassword(digest, "sha512"))

		ok, err := u.Unlock(ctx, source("stranger"), Options{Attempts: 1, PasswordAttempts: 3})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 3, p.asked)
	})

	t.Run("face wins, no prompt", func(t *testing.T) {
		p := &scripted{}
		u := newUnlocker(t, p, io.Discard)
		require.NoError(t, u.SetPassword(digest, "sha512"))

		ok, err := u.Unlock(ctx, source("owner"), Options{})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, p.asked)
	})

	t.Run("no password set", func(t *testing.T) {
		p := &scripted{answers: []string{"hunter2"}}
		u := newUnlocker(t, p, io.Discard)
		ok, err := u.Unlock(ctx, source("stranger"), Options{Attempts: 1})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, p.asked)
	})

	t.Run("prompt fails", func(t *testing.T) {
		u := newUnlocker(t, &scripted{}, io.Discard)
		require.NoError(t, u.SetPassword(digest, "sha512"))
		_, err := u.Unlock(ctx, source("stranger"), Options{Attempts: 1})
		assert.True(t, errors.Is(err, io.EOF))
	})
}

func TestSetPassword(t *testing.T) {
	u := newUnlocker(t, nil, io.Discard)
	assert.ErrorIs(t, u.SetPassword("abc", "crc32"), hashing.ErrUnsupportedMethod)
	assert.Error(t, u.SetPassword("", "sha256"))
	assert.False(t, u.HasPassword())
	require.NoError(t, u.SetPassword("abc", ""))
	assert.True(t, u.HasPassword())
}

func TestTermPrompter_NotATerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	p := &TermPrompter{In: f, Out: &out}

	got, err := p.Prompt("pw: ")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	got, err = p.Prompt("pw: ")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	_, err = p.Prompt("pw: ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "pw: pw: pw: ", out.String())
}
