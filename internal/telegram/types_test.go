package telegram

import (
	"reflect"
	"testing"
)

func TestMessageCommand(t *testing.T) {
	cases := []struct {
		text string
		name string
		args []string
	}{
		{"/start ref_12", "start", []string{"ref_12"}},
		{"/Leaderboard@rank_bot  month", "leaderboard", []string{"month"}},
		{"/help", "help", []string{}},
		{"hello", "", nil},
		{"/", "", nil},
	}
	for _, tc := range cases {
		name, args := (&Message{Text: tc.text}).Command()
		if name != tc.name || (len(args) > 0 || len(tc.args) > 0) && !reflect.DeepEqual(args, tc.args) {
			t.Errorf("Command(%q)=%q %v, want %q %v", tc.text, name, args, tc.name, tc.args)
		}
	}
}

func TestReactionAdded(t *testing.T) {
	thumbs := ReactionType{Type: "emoji", Emoji: "👍"}
	fire := ReactionType{Type: "emoji", Emoji: "🔥"}

	cases := []struct {
		old, new []ReactionType
		want     int
	}{
		{nil, []ReactionType{thumbs}, 1},
		{[]ReactionType{thumbs}, nil, 0},
		{[]ReactionType{thumbs}, []ReactionType{thumbs, fire}, 1},
		{[]ReactionType{thumbs}, []ReactionType{fire}, 1},
	}
	for i, tc := range cases {
		r := &MessageReactionUpdated{OldReaction: tc.old, NewReaction: tc.new}
		if got := r.Added(); got != tc.want {
			t.Errorf("case %d: Added=%d, want %d", i, got, tc.want)
		}
	}
}
