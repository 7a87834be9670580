package a2a

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTerminalState      = errors.New("task is in a terminal state")
	ErrInvalidTransition  = errors.New("invalid task state transition")
	errUnknownTargetState = errors.New("unknown task state")
)

var transitions = map[TaskState][]TaskState{
	TaskStatePending:       {TaskStateWorking, TaskStateFailed, TaskStateCanceled},
	TaskStateWorking:       {TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateInputRequired},
	TaskStateInputRequired: {TaskStateWorking, TaskStateFailed, TaskStateCanceled},
}

// CheckTransition validates a status change. A task that already reached a
// terminal state never moves again, so the first terminal state wins.
func CheckTransition(from, to TaskState) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, from)
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	if _, known := transitions[to]; !known && !to.Terminal() {
		return fmt.Errorf("%w: %q", errUnknownTargetState, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
