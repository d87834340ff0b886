package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("execute: %w", InsufficientFunds("Insufficient balance. You need $%s more %s.", "2.50", "USDC"))

	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.True(t, Is(err, KindInsufficientFunds))
	assert.False(t, Is(err, KindValidation))

	msg, ok := UserMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "Insufficient balance. You need $2.50 more USDC.", msg)
}

func TestCauseIsUnwrapped(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := Execution(cause, "Transaction failed: %s. Please try again.", "timeout")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "rpc timeout")
	msg, _ := UserMessage(err)
	assert.Equal(t, "Transaction failed: timeout. Please try again.", msg)
}

func TestUnclassifiedErrors(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Kind(""), KindOf(err))
	_, ok := UserMessage(err)
	assert.False(t, ok)
	_, ok = UserMessage(nil)
	assert.False(t, ok)
}

func TestConstructorsSetKinds(t *testing.T) {
	cases := map[Kind]error{
		KindValidation:        Validation("bad"),
		KindNotFound:          NotFound("missing"),
		KindInsufficientGas:   InsufficientGas("no gas"),
		KindAuthentication:    Authentication("wrong pin"),
		KindCollaborator:      Collaborator(errors.New("down"), "llm down"),
		KindExecution:         Execution(errors.New("revert"), "failed"),
		KindInsufficientFunds: InsufficientFunds("short"),
	}
	for kind, err := range cases {
		assert.Equal(t, kind, KindOf(err), string(kind))
	}
}
