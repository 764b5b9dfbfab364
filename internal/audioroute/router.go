// Package audioroute translates the conductor's abstract audio cues into
// DAW wire messages. It is the only subsystem that emits outbound audio
// traffic.
//
// The DAW session is laid out as rowCount × optionsPerRow tracks in row
// order: trackIndex(row, option) = row·optionsPerRow + option, with each
// option's clip at slot 0 of its track. Transitions mute rather than stop
// so running clips never produce audible discontinuities; stopping is
// reserved for uncommit and full reset.
package audioroute

import (
	"log/slog"
	"sync"

	"github.com/jwhector/yggdrasil/internal/osc"
	"github.com/jwhector/yggdrasil/internal/show"
)

// DAW addresses consumed by the router.
const (
	AddrTrackMute        = "/live/track/set/mute"
	AddrClipFire         = "/live/clip/fire"
	AddrClipStop         = "/live/clip/stop"
	AddrSongStart        = "/live/song/start_playing"
	AddrSongStop         = "/live/song/stop_playing"
	AddrSongContinue     = "/live/song/continue_playing"
	AddrSongSetTime      = "/live/song/set/current_song_time"
	AddrSongGetNumTracks = "/live/song/get/num_tracks"
)

// clipSlot is the session slot every clip lives in.
const clipSlot = 0

// Router owns the outbound DAW socket state: which tracks have ever fired
// this show and which are currently audible.
type Router struct {
	bridge osc.Bridge

	mu      sync.Mutex
	fired   map[int]bool
	unmuted map[int]bool
}

// New creates a Router speaking through bridge.
func New(bridge osc.Bridge) *Router {
	return &Router{
		bridge:  bridge,
		fired:   map[int]bool{},
		unmuted: map[int]bool{},
	}
}

// trackIndex maps (row, option index) onto the sequential session layout.
func trackIndex(row, option int) int {
	return row*show.OptionsPerRow + option
}

// OnCommit implements the engine sink contract: every AUDIO_CUE in the
// event batch is translated in order.
func (r *Router) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	for _, ev := range events {
		cue := show.CueOf(ev)
		if cue == nil {
			continue
		}
		r.handle(st, *cue)
	}
}

// handle translates one cue.
func (r *Router) handle(st *show.State, cue show.AudioCue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cue.Kind {
	case show.CuePlayOption:
		r.playOption(st, cue.Row, cue.Option)
	case show.CueStopOption:
		if idx, ok := optionIndex(st, cue.Row, cue.Option); ok {
			r.setMute(trackIndex(cue.Row, idx), true)
		}
	case show.CueCommitLayer:
		r.commitLayer(st, cue.Row, cue.Option)
	case show.CueUncommitLayer:
		r.uncommitLayer(cue.Row)
	case show.CuePlayTimeline:
		r.playTimeline(st, cue.Path)
	case show.CueTransportStop:
		r.send(osc.NewMessage(AddrSongStop))
	case show.CueTransportContinue:
		r.send(osc.NewMessage(AddrSongContinue))
	case show.CueResetAll:
		r.resetAll()
	default:
		slog.Warn("unknown audio cue", "kind", cue.Kind)
	}
}

// playOption makes one option of a row audible. The first audition of a row
// fires all four of its clips behind a full row mute, so later switches
// within the row are pure mute flips.
func (r *Router) playOption(st *show.State, row int, option show.OptionID) {
	idx, ok := optionIndex(st, row, option)
	if !ok {
		slog.Warn("play cue for unknown option", "row", row, "option", option)
		return
	}
	active := trackIndex(row, idx)

	if !r.rowFired(row) {
		for o := 0; o < show.OptionsPerRow; o++ {
			r.setMute(trackIndex(row, o), true)
		}
		for o := 0; o < show.OptionsPerRow; o++ {
			r.fireClip(trackIndex(row, o))
		}
		r.setMute(active, false)
		return
	}

	for o := 0; o < show.OptionsPerRow; o++ {
		track := trackIndex(row, o)
		if track != active && r.unmuted[track] {
			r.setMute(track, true)
		}
	}
	r.setMute(active, false)
}

// commitLayer leaves only the winner audible within its row; other rows'
// commits stay untouched.
func (r *Router) commitLayer(st *show.State, row int, winner show.OptionID) {
	idx, ok := optionIndex(st, row, winner)
	if !ok {
		slog.Warn("commit cue for unknown option", "row", row, "option", winner)
		return
	}
	winnerTrack := trackIndex(row, idx)
	r.setMute(winnerTrack, false)
	for o := 0; o < show.OptionsPerRow; o++ {
		if track := trackIndex(row, o); track != winnerTrack {
			r.setMute(track, true)
		}
	}
}

// uncommitLayer silences and stops a row and forgets its fired clips so the
// next audition re-fires them.
func (r *Router) uncommitLayer(row int) {
	for o := 0; o < show.OptionsPerRow; o++ {
		track := trackIndex(row, o)
		r.setMute(track, true)
		r.stopClip(track)
		delete(r.fired, track)
	}
}

// playTimeline silences everything and builds the given path from its
// committed layers. With a user id on the cue this is an individual finale
// timeline; the router treats both identically on the wire.
func (r *Router) playTimeline(st *show.State, path []show.OptionID) {
	for track := range r.unmuted {
		if r.unmuted[track] {
			r.setMute(track, true)
		}
	}
	for row, option := range path {
		if option == "" {
			continue
		}
		idx, ok := optionIndex(st, row, option)
		if !ok {
			continue
		}
		track := trackIndex(row, idx)
		if !r.fired[track] {
			r.fireClip(track)
		}
		r.setMute(track, false)
	}
}

// resetAll returns the session to silence: everything muted, every fired
// clip stopped, transport rewound.
func (r *Router) resetAll() {
	for track := range r.unmuted {
		if r.unmuted[track] {
			r.setMute(track, true)
		}
	}
	for track := range r.fired {
		r.stopClip(track)
	}
	r.fired = map[int]bool{}
	r.unmuted = map[int]bool{}
	r.send(osc.NewMessage(AddrSongStop))
	r.send(osc.NewMessage(AddrSongSetTime, float32(0)))
}

// rowFired reports whether any of a row's tracks has fired this show.
func (r *Router) rowFired(row int) bool {
	for o := 0; o < show.OptionsPerRow; o++ {
		if r.fired[trackIndex(row, o)] {
			return true
		}
	}
	return false
}

func (r *Router) setMute(track int, mute bool) {
	m := 0
	if mute {
		m = 1
	}
	r.unmuted[track] = !mute
	r.send(osc.NewMessage(AddrTrackMute, int32(track), int32(m)))
}

func (r *Router) fireClip(track int) {
	r.fired[track] = true
	r.send(osc.NewMessage(AddrClipFire, int32(track), int32(clipSlot)))
}

func (r *Router) stopClip(track int) {
	r.send(osc.NewMessage(AddrClipStop, int32(track), int32(clipSlot)))
}

func (r *Router) send(m osc.Message) {
	if err := r.bridge.Send(m); err != nil {
		slog.Warn("daw send failed", "address", m.Address, "err", err)
	}
}

// optionIndex resolves an option id to its index within a row using the
// state snapshot the cue arrived with.
func optionIndex(st *show.State, row int, option show.OptionID) (int, bool) {
	if row < 0 || row >= len(st.Rows) {
		return 0, false
	}
	for _, o := range st.Rows[row].Options {
		if o.ID == option {
			return o.Index, true
		}
	}
	return 0, false
}
