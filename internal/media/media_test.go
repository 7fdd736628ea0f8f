package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Video ")
	require.NoError(t, err)
	require.Equal(t, KindVideo, k)

	k, err = ParseKind("audio")
	require.NoError(t, err)
	require.Equal(t, KindAudio, k)

	_, err = ParseKind("subtitles")
	require.Error(t, err)
}

func TestKind_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Format{ID: "22", Kind: KindAudio})
	require.NoError(t, err)
	require.Contains(t, string(b), `"kind":"audio"`)

	var f Format
	require.NoError(t, json.Unmarshal(b, &f))
	require.Equal(t, KindAudio, f.Kind)

	require.Error(t, json.Unmarshal([]byte(`{"kind":"gif"}`), &f))
}

func TestFormat_Ext(t *testing.T) {
	require.Equal(t, "webm", Format{Kind: KindVideo, Container: ".WebM"}.Ext())
	require.Equal(t, "mp4", Format{Kind: KindVideo}.Ext())
	require.Equal(t, "mp3", Format{Kind: KindAudio}.Ext())
}

func TestState_Transitions(t *testing.T) {
	require.True(t, StatePending.CanTransition(StateInProgress))
	require.True(t, StatePending.CanTransition(StateFailed))
	require.False(t, StatePending.CanTransition(StateCompleted))
	require.True(t, StateInProgress.CanTransition(StateCompleted))
	require.True(t, StateInProgress.CanTransition(StateFailed))
	require.False(t, StateInProgress.CanTransition(StatePending))

	for _, s := range []State{StateCompleted, StateFailed} {
		require.True(t, s.IsTerminal())
		for _, next := range []State{StatePending, StateInProgress, StateCompleted, StateFailed} {
			require.False(t, s.CanTransition(next), "%s -> %s", s, next)
		}
	}
	require.False(t, StatePending.IsTerminal())

	var st State
	require.NoError(t, st.UnmarshalText([]byte("completed")))
	require.Equal(t, StateCompleted, st)
	require.Error(t, st.UnmarshalText([]byte("paused")))
	require.Equal(t, "in_progress", StateInProgress.String())
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "", UserMessage(nil))
	require.Equal(t, "This quality isn't available.", UserMessage(fmt.Errorf("select: %w", ErrNoMatchingFormat)))
	require.Equal(t, "Download cancelled.", UserMessage(fmt.Errorf("%w: %w", ErrTransfer, ErrCancelled)))
	require.Equal(t, "Another download is already writing to this file.", UserMessage(ErrConflict))
	require.Equal(t, "Something went wrong.", UserMessage(errors.New("boom")))
}
