package memory_test

import (
	"testing"

	"fortuneteller/pkg/session/memory"
	"fortuneteller/pkg/session/sessiontest"
)

func TestMemoryStoreContract(t *testing.T) {
	sessiontest.RunStoreContract(t, memory.New())
}
