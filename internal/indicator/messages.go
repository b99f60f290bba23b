package indicator

// phase is the lifecycle moment a notification describes.
type phase int

const (
	phaseRecording phase = iota + 1
	phaseLoading
	phaseTranscribing
	phaseError
)

// urgency is the freedesktop urgency hint.
type urgency byte

const (
	urgencyLow      urgency = 0
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

const (
	// persistentTimeoutMS keeps in-progress notifications up until replaced or hidden.
	persistentTimeoutMS   = 300000
	defaultErrorTimeoutMS = 1200
)

// notification is one rendered desktop notification.
type notification struct {
	Summary   string
	Body      string
	Icon      string
	Urgency   urgency
	Transient bool
	TimeoutMS int
}

// notificationFor renders p. detail becomes the body of error notifications.
func notificationFor(p phase, detail string, errorTimeoutMS int) notification {
	switch p {
	case phaseRecording:
		return notification{
			Summary:   "Recording…",
			Icon:      "audio-input-microphone",
			Urgency:   urgencyNormal,
			TimeoutMS: persistentTimeoutMS,
		}
	case phaseLoading:
		return notification{
			Summary:   "Loading model…",
			Body:      "First transcription after a model change takes longer",
			Icon:      "system-run",
			Urgency:   urgencyLow,
			TimeoutMS: persistentTimeoutMS,
		}
	case phaseTranscribing:
		return notification{
			Summary:   "Transcribing…",
			Icon:      "accessories-text-editor",
			Urgency:   urgencyLow,
			TimeoutMS: persistentTimeoutMS,
		}
	default:
		if errorTimeoutMS <= 0 {
			errorTimeoutMS = defaultErrorTimeoutMS
		}
		return notification{
			Summary:   "Speech recognition error",
			Body:      detail,
			Icon:      "dialog-error",
			Urgency:   urgencyCritical,
			Transient: true,
			TimeoutMS: errorTimeoutMS,
		}
	}
}
