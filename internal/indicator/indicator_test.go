package indicator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rbright/voxkey/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type notifyCall struct {
	appName   string
	replaceID uint32
	n         notification
}

type recorder struct {
	mu        sync.Mutex
	notifies  []notifyCall
	dismissed []uint32
	cues      []cueKind
	nextID    uint32
}

func newTestDesktop(cfg config.IndicatorConfig, rec *recorder) *Desktop {
	d := NewDesktop(cfg, zerolog.Nop())
	d.notifyFn = func(_ context.Context, appName string, replaceID uint32, n notification) (uint32, error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.nextID++
		rec.notifies = append(rec.notifies, notifyCall{appName, replaceID, n})
		return rec.nextID, nil
	}
	d.dismissFn = func(_ context.Context, id uint32) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.dismissed = append(rec.dismissed, id)
		return nil
	}
	d.cueFn = func(_ context.Context, kind cueKind) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.cues = append(rec.cues, kind)
		return nil
	}
	return d
}

func TestDesktopReplacesNotificationAcrossLifecycle(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	rec := &recorder{}
	d := newTestDesktop(cfg, rec)

	d.ShowRecording(context.Background())
	d.ShowLoading(context.Background())
	d.ShowTranscribing(context.Background())
	d.ShowError(context.Background(), "typing failed")
	d.Hide(context.Background())

	require.Len(t, rec.notifies, 4)
	var summaries []string
	for i, call := range rec.notifies {
		require.Equal(t, "voxkey", call.appName)
		require.Equal(t, uint32(i), call.replaceID)
		summaries = append(summaries, call.n.Summary)
	}
	require.Equal(t, []string{"Recording…", "Loading model…", "Transcribing…", "Speech recognition error"}, summaries)

	errNote := rec.notifies[3].n
	require.Equal(t, "typing failed", errNote.Body)
	require.Equal(t, urgencyCritical, errNote.Urgency)
	require.True(t, errNote.Transient)
	require.Equal(t, 1600, errNote.TimeoutMS)
	require.Equal(t, []uint32{4}, rec.dismissed)
}

func TestNotificationForPhases(t *testing.T) {
	rec := notificationFor(phaseRecording, "", 0)
	require.Equal(t, persistentTimeoutMS, rec.TimeoutMS)
	require.Equal(t, "audio-input-microphone", rec.Icon)
	require.False(t, rec.Transient)

	require.Equal(t, urgencyLow, notificationFor(phaseTranscribing, "", 0).Urgency)
	require.NotEmpty(t, notificationFor(phaseLoading, "", 0).Body)

	errNote := notificationFor(phaseError, "", 0)
	require.Equal(t, defaultErrorTimeoutMS, errNote.TimeoutMS)
	require.Empty(t, errNote.Body)
}

func TestDesktopDisabledSkipsDispatch(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.NotifyEnable = false
	cfg.SoundEnable = false
	rec := &recorder{}
	d := newTestDesktop(cfg, rec)

	d.ShowRecording(context.Background())
	d.ShowLoading(context.Background())
	d.ShowError(context.Background(), "ignored")
	d.CueComplete(context.Background())
	d.Hide(context.Background())
	d.Wait()

	require.Empty(t, rec.notifies)
	require.Empty(t, rec.dismissed)
	require.Empty(t, rec.cues)
}

func TestDesktopPlaysCues(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.NotifyEnable = false
	rec := &recorder{}
	d := newTestDesktop(cfg, rec)

	d.ShowRecording(context.Background())
	d.Wait()
	d.CueComplete(context.Background())
	d.Wait()
	d.CueCancel(context.Background())
	d.Wait()

	require.Equal(t, []cueKind{cueStart, cueComplete, cueCancel}, rec.cues)
}

func TestDesktopHideWithoutNotificationIsNoop(t *testing.T) {
	cfg := config.Default().Indicator
	rec := &recorder{}
	d := newTestDesktop(cfg, rec)
	d.dismissFn = func(context.Context, uint32) error { return errors.New("unexpected") }

	d.Hide(context.Background())
	require.Empty(t, rec.dismissed)
}

func stubBusctl(t *testing.T, out string, err error) *[][]string {
	t.Helper()
	var calls [][]string
	orig := busctl
	busctl = func(_ context.Context, args ...string) ([]byte, error) {
		calls = append(calls, args)
		return []byte(out), err
	}
	t.Cleanup(func() { busctl = orig })
	return &calls
}

func TestSendNotificationEncodesHints(t *testing.T) {
	calls := stubBusctl(t, "u 42\n", nil)

	id, err := sendNotification(context.Background(), "voxkey", 7, notificationFor(phaseError, "no audio", 900))
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	require.Len(t, *calls, 1)
	args := (*calls)[0]
	require.Equal(t, "Notify", args[5])
	require.Equal(t, "susssasa{sv}i", args[6])
	require.Equal(t, []string{
		"voxkey", "7", "dialog-error", "Speech recognition error", "no audio",
		"0",
		"2", "urgency", "y", "2", "transient", "b", "true",
		"900",
	}, args[7:])
}

func TestSendNotificationWithoutTransientHint(t *testing.T) {
	calls := stubBusctl(t, "u 3", nil)

	_, err := sendNotification(context.Background(), "voxkey", 0, notificationFor(phaseRecording, "", 0))
	require.NoError(t, err)
	args := (*calls)[0]
	require.Equal(t, []string{"1", "urgency", "y", "1", "300000"}, args[len(args)-5:])
}

func TestSendNotificationRejectsMalformedReply(t *testing.T) {
	stubBusctl(t, "s nope", nil)

	_, err := sendNotification(context.Background(), "voxkey", 0, notificationFor(phaseRecording, "", 0))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid response")
}

func TestCloseNotificationReportsFailureOutput(t *testing.T) {
	calls := stubBusctl(t, "no bus\n", errors.New("exit status 1"))

	err := closeNotification(context.Background(), 7)
	require.Error(t, err)
	require.Contains(t, err.Error(), "desktop dismiss failed")
	require.Contains(t, err.Error(), "no bus")
	require.Equal(t, []string{"CloseNotification", "u", "7"}, (*calls)[0][5:])
}
