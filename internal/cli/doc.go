// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package cli provides the root command of the referral-agent CLI.

It creates the Cobra command and handles global concerns: version
information, persistent flags and exit codes. Subcommands live in the
internal/commands subpackages.

# Command Tree

	referral-agent
	├── serve      Run the HTTP API
	├── chat       Talk to the agent from the terminal
	├── tool       List or run a single tool
	├── mcp        Serve the tools over MCP stdio
	└── version    Show version

# Global Flags

	--verbose, -v    Debug logging
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Configuration error, including a missing API key
  - 4: LLM provider error
*/
package cli
