package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalAndInformational(t *testing.T) {
	assert.True(t, Read.Fatal())
	assert.True(t, Security.Fatal())
	assert.False(t, Timeout.Fatal())

	assert.True(t, NoMore.Informational())
	assert.True(t, Timeout.Informational())
	assert.False(t, Read.Informational())
}

func TestWireErrorIsMatchesStatus(t *testing.T) {
	err := &WireError{Status: Unmarshal, Operation: "ReadScalar", Offset: 12, Message: "type mismatch"}
	assert.True(t, errors.Is(err, Unmarshal))
	assert.False(t, errors.Is(err, Marshal))
}

func TestSecurityErrorIsMatchesSecurity(t *testing.T) {
	err := &SecurityError{Operation: "Decrypt", Message: "MAC mismatch"}
	assert.True(t, errors.Is(err, Security))
}

func TestResourceErrorMessage(t *testing.T) {
	err := &ResourceError{Operation: "Grow", Needed: 100, Available: 10}
	assert.Contains(t, err.Error(), "100")
	assert.True(t, errors.Is(err, Resources))
}

func TestStatusAsBareError(t *testing.T) {
	var err error = Invalid
	assert.EqualError(t, err, "ERR_INVALID")
}
