package assistant

// State is the orchestrator's position in the query pipeline.
type State int32

const (
	StateIdle         State = iota // No query in flight
	StateRecording                 // Waiting for the user to finish speaking
	StateTranscribing              // Speech-to-text request running
	StateCompleting                // Prompt built, completion request running
	StatePlaying                   // Reply audio being played
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateCompleting:
		return "completing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Phase labels a status update so the UI can style it.
type Phase string

const (
	PhaseProcessing   Phase = "processing"
	PhaseRecording    Phase = "recording"
	PhaseTranscribing Phase = "transcribing"
	PhaseCompleting   Phase = "completing"
	PhasePlaying      Phase = "playing"
	PhaseSuccess      Phase = "success"
	PhaseError        Phase = "error"
	PhaseInfo         Phase = "info"
)

// StatusFunc receives a human-readable message at each pipeline transition.
type StatusFunc func(message string, phase Phase)

// Status messages shown to the user.
const (
	msgStarting    = "Starting..."
	msgRecording   = "Recording..."
	msgMisfire     = "Please start speaking again"
	msgRecorded    = "Recording completed"
	msgProcessing  = "Transcribing..."
	msgGenerating  = "Generating response..."
	msgPlaying     = "Playing response..."
	msgCompleted   = "Completed"
	msgSwitching   = "Switching to traditional recording mode..."
	msgStartingFix = "Starting recording..."
	msgTimeout     = "Recording timeout, please try again"
	msgBusy        = "A question is already being processed"
	msgNoSpeech    = "No speech was recognized, please try again"
	msgErrorPrefix = "Error: "
)
