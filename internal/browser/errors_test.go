package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorText(t *testing.T) {
	cause := errors.New("ReferenceError: foo is not defined")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "missing arg", err: &argError{key: "script"}, want: "Missing required 'script' argument"},
		{name: "bad arg", err: &argError{key: "x", want: "an integer", got: 1.5}, want: "'x' must be an integer, got: 1.5"},
		{name: "two choices", err: &choiceError{what: "snapshot type", got: "full", choices: snapshotTypes},
			want: "Invalid snapshot type: 'full'. Use 'accessibility' or 'structure'."},
		{name: "many choices", err: &choiceError{what: "state", got: "gone", choices: waitStates},
			want: "Invalid state: 'gone'. Use 'attached', 'visible' or 'hidden'."},
		{name: "script timeout", err: &scriptError{timeout: 5 * time.Second}, want: "Script execution timeout after 5s"},
		{name: "script failure", err: &scriptError{err: cause}, want: "Script error: ReferenceError: foo is not defined"},
		{name: "no element", err: &elementError{selector: "#save"}, want: "Element not found: '#save'"},
		{name: "wait timeout", err: &waitError{timeout: 250 * time.Millisecond, cond: "text 'Done'"},
			want: "Timed out after 250ms waiting for text 'Done'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, &scriptError{err: cause}, cause)
}
