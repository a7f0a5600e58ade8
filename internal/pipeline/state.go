package pipeline

import "sync"

// State 表示一次播报请求所处的阶段。
type State int

const (
	// StateIdle：请求已创建，尚未开始。
	StateIdle State = iota
	// StateResolving：正在解析并加载语音。
	StateResolving
	// StateSynthesizing：已获得设备锁，等待第一帧音频。
	StateSynthesizing
	// StateFormatKnown：已由第一帧确定播放格式。
	StateFormatKnown
	// StateStreaming：正在向播放端写入 PCM。
	StateStreaming
	// StateDraining：输入已关闭，等待播放端排空。
	StateDraining
	// StateDone：播放成功结束。
	StateDone
	// StateFailed：任一阶段失败后的终态。
	StateFailed
)

var stateNames = [...]string{
	"Idle",
	"Resolving",
	"Synthesizing",
	"FormatKnown",
	"Streaming",
	"Draining",
	"Done",
	"Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal 返回是否为终态。
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateMachine 记录单次请求的状态，只进不退，终态后不再变化。
type StateMachine struct {
	mu       sync.Mutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// Transition 尝试切换状态。合法的转换只有：
//
//	Idle → Resolving → Synthesizing → FormatKnown → Streaming → Draining → Done
//
// 以及任何非终态 → Failed。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		return false
	}
	from := sm.current
	sm.current = to
	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

func validTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return to == from+1
}
