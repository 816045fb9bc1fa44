package factory

import (
	"time"

	"github.com/mcoot/playerhub/internal/dependencies/mocks"
	"github.com/mcoot/playerhub/internal/presence"
	"github.com/mcoot/playerhub/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDs
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// The broadcaster loop is not started; call Broadcaster.Run when needed.
func NewTestApp() *TestApp {
	return NewTestAppWithPresence(presence.Nop{})
}

// NewTestAppWithPresence is NewTestApp with a custom presence publisher
func NewTestAppWithPresence(publisher presence.Publisher) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDs()

	app := newWithDependencies(mockClock, mockIDs, publisher, testutil.NopLogger())

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
	}
}
