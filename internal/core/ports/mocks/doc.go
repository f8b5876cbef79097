// Package mocks provides test doubles for ports interfaces.
//
// These mocks are designed to be simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior that returns reasonable test values
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting state directly
//
// # Usage Example
//
//	func TestHarvest(t *testing.T) {
//		src := mocks.NewChatSource()
//		src.AddChat(domain.Entity{ID: 42, Kind: domain.ChatKindChannel, Title: "news"})
//		src.AddMessages(42, msgs...)
//
//		h := harvester.New(src, store, nil, filters.Config{}, harvester.Options{}, &logger)
//		// ... test harvester behavior
//	}
//
// # Available Mocks
//
//   - ChatSource: implements ports.ChatSource
package mocks
