// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// Chat completions are always streamed. StartChat returns a Stream whose
// Events channel yields text deltas in the order the server produced them,
// followed by exactly one terminal event (Done or Err). Cancel stops
// consumption on the client side; Ollama may keep generating until it
// notices the closed connection.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - Stream: cancellable sequence of Events read from an NDJSON body
//   - Event: a delta, completion, or error from a Stream
//   - ClientError: typed error with an ErrorType for handling decisions
//
// # Usage
//
//	client := ollama.NewClient()
//	stream, err := client.StartChat(ctx, "llama3.2", []ollama.Message{
//	    {Role: "user", Content: "Hello"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Cancel()
//	for ev := range stream.Events() {
//	    switch {
//	    case ev.Err != nil:
//	        return ev.Err
//	    case ev.Done:
//	        fmt.Println()
//	    default:
//	        fmt.Print(ev.Delta)
//	    }
//	}
//
// Streams can also be built over any reader, which is how tests fake a
// server:
//
//	pr, pw := io.Pipe()
//	stream := ollama.NewStream(ctx, pr, nil)
package ollama
