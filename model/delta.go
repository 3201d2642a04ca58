package model

// DeltaKind classifies a streaming delta.
type DeltaKind int

const (
	DeltaText DeltaKind = iota
	DeltaToolCallStart
	DeltaToolCallArgs
	DeltaToolCallEnd
	DeltaDone
	DeltaError
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaText:
		return "text"
	case DeltaToolCallStart:
		return "tool-call-start"
	case DeltaToolCallArgs:
		return "tool-call-args"
	case DeltaToolCallEnd:
		return "tool-call-end"
	case DeltaDone:
		return "done"
	case DeltaError:
		return "error"
	default:
		return "unknown"
	}
}

// Delta is one incremental unit of assistant output. Deltas are transient:
// the orchestrator accumulates them into turns and never persists them.
//
// Field use by kind:
//   - DeltaText: Text
//   - DeltaToolCallStart: ToolCallID, ToolName
//   - DeltaToolCallArgs: ToolCallID, Args (a raw JSON fragment)
//   - DeltaToolCallEnd: ToolCallID
//   - DeltaError: Err
type Delta struct {
	Kind       DeltaKind
	Text       string
	ToolCallID string
	ToolName   string
	Args       string
	Err        *Error
}

// Terminal reports whether d ends a stream.
func (d Delta) Terminal() bool {
	return d.Kind == DeltaDone || d.Kind == DeltaError
}

func TextDelta(text string) Delta {
	return Delta{Kind: DeltaText, Text: text}
}

func ToolCallStartDelta(id, name string) Delta {
	return Delta{Kind: DeltaToolCallStart, ToolCallID: id, ToolName: name}
}

func ToolCallArgsDelta(id, fragment string) Delta {
	return Delta{Kind: DeltaToolCallArgs, ToolCallID: id, Args: fragment}
}

func ToolCallEndDelta(id string) Delta {
	return Delta{Kind: DeltaToolCallEnd, ToolCallID: id}
}

func DoneDelta() Delta {
	return Delta{Kind: DeltaDone}
}

func ErrorDelta(err *Error) Delta {
	return Delta{Kind: DeltaError, Err: err}
}
