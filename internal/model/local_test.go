package model

import (
	"context"
	"testing"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendNotDownloaded(t *testing.T) {
	loader := &fakeLoader{}
	m := newTestManager(t, loader)
	backend := NewLocalBackend(m, "base.en", true, zerolog.Nop())

	result := backend.Transcribe(context.Background(), audio.Recording{})
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not downloaded")
	require.Empty(t, loader.Calls())
}

func TestLocalBackendKeepLoaded(t *testing.T) {
	loader := &fakeLoader{out: Output{Text: "hello"}}
	m := newTestManager(t, loader)
	installModel(t, m, "base.en")
	backend := NewLocalBackend(m, "base.en", true, zerolog.Nop())

	for i := 0; i < 3; i++ {
		result := backend.Transcribe(context.Background(), audio.Recording{})
		require.True(t, result.Success, result.Error)
		require.Equal(t, "hello", result.Text)
	}

	require.Len(t, loader.Calls(), 1)
	require.Equal(t, "base.en", m.State().LoadedModelID)
}

func TestLocalBackendUnloadsWhenNotKeepingLoaded(t *testing.T) {
	loader := &fakeLoader{out: Output{Text: "hello"}}
	m := newTestManager(t, loader)
	installModel(t, m, "base.en")
	backend := NewLocalBackend(m, "base.en", false, zerolog.Nop())

	for i := 0; i < 2; i++ {
		result := backend.Transcribe(context.Background(), audio.Recording{})
		require.True(t, result.Success, result.Error)
		require.Empty(t, m.State().LoadedModelID)
	}

	require.Len(t, loader.Calls(), 2)
	require.Zero(t, loader.resident.Load())
}

func TestLocalBackendLoadErrorBecomesFailedResult(t *testing.T) {
	loader := &fakeLoader{err: context.DeadlineExceeded}
	m := newTestManager(t, loader)
	installModel(t, m, "base.en")
	backend := NewLocalBackend(m, "base.en", true, zerolog.Nop())

	result := backend.Transcribe(context.Background(), audio.Recording{})
	require.False(t, result.Success)
	require.Contains(t, result.Error, `load model "base.en"`)
}

func TestLocalBackendWarm(t *testing.T) {
	loader := &fakeLoader{}
	m := newTestManager(t, loader)
	backend := NewLocalBackend(m, "base.en", true, zerolog.Nop())

	backend.Warm(context.Background())
	require.Empty(t, loader.Calls())

	installModel(t, m, "base.en")
	backend.Warm(context.Background())
	require.Equal(t, "base.en", m.State().LoadedModelID)

	cold := NewLocalBackend(newTestManager(t, loader), "base.en", false, zerolog.Nop())
	cold.Warm(context.Background())
	require.Len(t, loader.Calls(), 1)
}
