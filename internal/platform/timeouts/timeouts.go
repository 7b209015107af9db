// Package timeouts defines shared timeout constants used across the
// runtime. Centralizing these values prevents drift between components
// and makes the durations discoverable.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// Upstream caps a single call to an AI collaborator: utterance
// classification, narration rendering, or memory retrieval.
const Upstream = 10 * time.Second

// Shutdown limits how long the runtime waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
