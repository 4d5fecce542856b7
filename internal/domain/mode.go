package domain

import "fmt"

// Mode selects how a drafted reply is delivered.
type Mode string

const (
	ModeOff      Mode = "off"
	ModeAuto     Mode = "auto"
	ModeManual   Mode = "manual"
	ModeGenerate Mode = "generate"
)

// ParseMode accepts the configured mode names, case-sensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModeAuto, ModeManual, ModeGenerate:
		return Mode(s), nil
	case "":
		return ModeOff, nil
	}
	return "", fmt.Errorf("unknown mode %q (want off, auto, manual or generate)", s)
}

// Outcome is what happened to a drafted reply.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDrafted   Outcome = "drafted"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeTakenOver Outcome = "taken_over"
	OutcomeFailed    Outcome = "failed"
)

// ManualState is what the page observed while a manual-mode draft waited
// for the operator.
type ManualState struct {
	SendClicked  bool `json:"sendClicked"`
	InputTouched bool `json:"inputTouched"`
}
