package stackplan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeError_Unwrap(t *testing.T) {
	err := &NodeError{ID: "main-db", Err: ErrCredentialNotReady}

	assert.True(t, errors.Is(err, ErrCredentialNotReady))
	assert.False(t, errors.Is(err, ErrUnknownNode))
	assert.Contains(t, err.Error(), "main-db")
}

func TestNodeError_Detail(t *testing.T) {
	err := &NodeError{ID: "api", Detail: "declared twice", Err: ErrDuplicateIdentifier}

	assert.Contains(t, err.Error(), "api")
	assert.Contains(t, err.Error(), "declared twice")
}

func TestEdgeError_Unwrap(t *testing.T) {
	err := &EdgeError{From: "web-lb", To: "api", Err: ErrUnroutableService}

	assert.True(t, errors.Is(err, ErrUnroutableService))
	assert.Contains(t, err.Error(), "web-lb -> api")
}

func TestCycleError(t *testing.T) {
	err := &CycleError{Nodes: []string{"a", "b", "c", "a"}}

	assert.True(t, errors.Is(err, ErrCyclicDependency))
	assert.Equal(t, "cyclic dependency: a -> b -> c -> a", err.Error())
}
