package overlay

import (
	"sync"
	"time"

	"github.com/justestif/go-spotify-overlay/internal/api"
)

// Outcome classifies one poll of the now-playing endpoint.
type Outcome int

const (
	// OutcomeTrack means a track is loaded, playing or paused.
	OutcomeTrack Outcome = iota
	// OutcomeNotPlaying means the owner has no active playback.
	OutcomeNotPlaying
	// OutcomeNotFound means the user ID is unknown.
	OutcomeNotFound
	// OutcomeAuthExpired means the owner must reconnect Spotify.
	OutcomeAuthExpired
	// OutcomeUpstreamError is a transient server or network failure.
	OutcomeUpstreamError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTrack:
		return "track"
	case OutcomeNotPlaying:
		return "not_playing"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// PollResult is one answer from the server.
type PollResult struct {
	Outcome   Outcome
	IsPlaying bool
	Track     *api.Track // Set only for OutcomeTrack
	Err       error      // Cause of OutcomeUpstreamError, for logging
}

// Status is what the overlay is currently showing.
type Status int

const (
	// StatusConnecting is the state before the first usable poll.
	StatusConnecting Status = iota
	// StatusShowing means a track card is displayed.
	StatusShowing
	// StatusIdle means nothing is playing and the card is hidden.
	StatusIdle
	// StatusError means a message replaces the card.
	StatusError
)

// Messages shown in place of the card.
const (
	MessageNotFound        = "User not found"
	MessageAuthExpired     = "Session expired, reconnect"
	MessageConnectionError = "Connection error"
	MessageMissingUser     = "No userId specified"
)

// State is the interpolator's view of playback.
type State struct {
	Status  Status
	Message string // Set when Status is StatusError

	Track     *api.Track
	IsPlaying bool

	// Baseline from the last poll.
	LastKnownProgressMs int
	DurationMs          int
	LastSync            time.Time

	// DisplayedProgressMs is the extrapolated progress as of the last tick.
	DisplayedProgressMs int

	// Transition is set by the poll that switched to a new track and
	// cleared by the next tick.
	Transition bool
}

// TrackID returns the current track's ID, or "" if none is shown.
func (s State) TrackID() string {
	if s.Track == nil {
		return ""
	}
	return s.Track.ID
}

// Interpolator holds the playback state shared by the poll and render
// loops. Polls are authoritative; ticks only extrapolate.
type Interpolator struct {
	mu    sync.Mutex
	state State
}

// NewInterpolator creates an Interpolator in StatusConnecting.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// State returns a copy of the current state.
func (i *Interpolator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Apply folds a poll result received at time at into the state.
func (i *Interpolator) Apply(r PollResult, at time.Time) State {
	i.mu.Lock()
	defer i.mu.Unlock()

	s := &i.state
	switch r.Outcome {
	case OutcomeTrack:
		if r.Track == nil {
			i.clear(StatusIdle, "")
			break
		}
		changed := s.TrackID() != r.Track.ID
		track := *r.Track

		s.Status = StatusShowing
		s.Message = ""
		s.Track = &track
		s.IsPlaying = r.IsPlaying
		s.DurationMs = max(track.Duration, 0)
		s.LastKnownProgressMs = clamp(track.Progress, 0, s.DurationMs)
		s.LastSync = at
		s.DisplayedProgressMs = s.LastKnownProgressMs
		s.Transition = changed

	case OutcomeNotPlaying:
		i.clear(StatusIdle, "")

	case OutcomeNotFound:
		i.clear(StatusError, MessageNotFound)

	case OutcomeAuthExpired:
		i.clear(StatusError, MessageAuthExpired)

	case OutcomeUpstreamError:
		// Stale data beats a blank overlay; only a first poll shows the error.
		if s.Status == StatusConnecting {
			s.Status = StatusError
			s.Message = MessageConnectionError
		}
	}

	return i.state
}

// Fail drops the track and shows msg.
func (i *Interpolator) Fail(msg string) State {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.clear(StatusError, msg)
	return i.state
}

// clear drops the track. Caller must hold i.mu.
func (i *Interpolator) clear(status Status, msg string) {
	i.state = State{Status: status, Message: msg}
}

// Tick extrapolates displayed progress to now without touching the poll
// baseline. Progress never exceeds the duration and never moves backward
// between polls.
func (i *Interpolator) Tick(now time.Time) State {
	i.mu.Lock()
	defer i.mu.Unlock()

	s := &i.state
	s.Transition = false
	if s.Status != StatusShowing {
		return i.state
	}

	if !s.IsPlaying {
		s.DisplayedProgressMs = s.LastKnownProgressMs
		return i.state
	}

	elapsed := max(now.Sub(s.LastSync).Milliseconds(), 0)
	progress := clamp(s.LastKnownProgressMs+int(elapsed), 0, s.DurationMs)
	if progress > s.DisplayedProgressMs {
		s.DisplayedProgressMs = progress
	}

	return i.state
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
