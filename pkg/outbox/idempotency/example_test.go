package idempotency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func ExampleManager_Once() {
	manager, _ := NewManager(newMemStore(), 0)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for attempt := 1; attempt <= 2; attempt++ {
		ran, _ := manager.Once(context.Background(), "analytics", eventID, func(context.Context) error {
			fmt.Println("recording donation event")
			return nil
		})
		fmt.Printf("delivery %d handled: %v\n", attempt, ran)
	}
	// Output:
	// recording donation event
	// delivery 1 handled: true
	// delivery 2 handled: false
}
