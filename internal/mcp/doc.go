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
Package mcp exposes the referral tools over the Model Context Protocol.

Every tool in a tools.Registry is published with its JSON input schema, so
an MCP client (an IDE assistant or another agent) can look up providers,
check coverage or book slots without going through the chat loop.

# Usage

	srv, err := mcp.NewServer(mcp.ServerConfig{
	    Name:     "referral-agent",
	    Version:  version,
	    Registry: registry,
	    Logger:   logger,
	})
	if err != nil {
	    return err
	}
	return srv.Run(ctx)

Run speaks JSON-RPC over stdin and stdout. Logs must therefore go to
stderr.

# Results

A call returns the tool's output map as JSON text. Tools that report a
domain failure ({"success": false, ...}) still return their output as a
normal result so the client sees the error message. Calls that fail
outright, such as unknown tools or missing required inputs, are returned
as MCP tool errors.
*/
package mcp
