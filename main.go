// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ollamachat is a terminal chat client for a local Ollama server.
package main

import (
	"os"

	"github.com/jeranaias/ollamachat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
