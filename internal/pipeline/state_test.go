package pipeline

import "testing"

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected Idle, got %s", sm.Current())
	}
}

func TestStateMachine_HappyPath(t *testing.T) {
	sm := NewStateMachine()
	path := []State{StateResolving, StateSynthesizing, StateFormatKnown, StateStreaming, StateDraining, StateDone}
	for _, s := range path {
		if !sm.Transition(s) {
			t.Fatalf("transition to %s should succeed", s)
		}
	}
	if sm.Current() != StateDone {
		t.Fatalf("expected Done, got %s", sm.Current())
	}
}

func TestStateMachine_NoSkippingOrGoingBack(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{StateIdle, StateSynthesizing},
		{StateIdle, StateDone},
		{StateResolving, StateIdle},
		{StateStreaming, StateFormatKnown},
		{StateFormatKnown, StateDraining},
	}
	for _, tt := range tests {
		sm := advanceTo(t, tt.from)
		if sm.Transition(tt.to) {
			t.Errorf("%s → %s should be rejected", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should stay %s, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_AnyActiveStateCanFail(t *testing.T) {
	for s := StateIdle; s <= StateDraining; s++ {
		sm := advanceTo(t, s)
		if !sm.Transition(StateFailed) {
			t.Errorf("%s → Failed should be allowed", s)
		}
	}
}

func TestStateMachine_TerminalStatesAreFinal(t *testing.T) {
	done := advanceTo(t, StateDone)
	if done.Transition(StateFailed) {
		t.Error("Done → Failed should be rejected")
	}
	failed := NewStateMachine()
	failed.Transition(StateFailed)
	if failed.Transition(StateResolving) || failed.Transition(StateFailed) {
		t.Error("Failed is terminal")
	}
}

func TestStateMachine_OnChangeCallback(t *testing.T) {
	sm := NewStateMachine()
	var gotFrom, gotTo State
	calls := 0
	sm.SetOnChange(func(from, to State) {
		gotFrom, gotTo = from, to
		calls++
	})
	sm.Transition(StateResolving)
	sm.Transition(StateIdle) // 非法，不触发回调
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}
	if gotFrom != StateIdle || gotTo != StateResolving {
		t.Errorf("callback got %s → %s", gotFrom, gotTo)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateFormatKnown, "FormatKnown"},
		{StateFailed, "Failed"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// advanceTo 从 Idle 沿合法路径推进到 target。
func advanceTo(t *testing.T, target State) *StateMachine {
	t.Helper()
	sm := NewStateMachine()
	for s := StateIdle + 1; s <= target && target != StateIdle; s++ {
		if s == StateFailed {
			break
		}
		if !sm.Transition(s) {
			t.Fatalf("failed to advance to %s", s)
		}
	}
	return sm
}
