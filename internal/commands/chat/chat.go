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

// Package chat implements the chat command: a terminal conversation with
// the referral agent.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/referral-agent/internal/commands/shared"
	"github.com/tombee/referral-agent/pkg/agent"
	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
)

// Turner runs one conversation turn.
type Turner interface {
	StreamResult(ctx context.Context, query, contextID string, emit func(agent.Update)) (*agent.Result, error)
}

// NewCommand creates the chat command.
func NewCommand() *cobra.Command {
	var contextID string

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Talk to the referral agent from the terminal",
		Long: `Start an interactive conversation with the referral agent.

With a message argument, one turn is run and the reply printed. Without one,
a REPL reads messages from stdin until EOF or "exit". Type "/new" to start a
new conversation.

Status updates from running tools are printed dimmed.`,
		Example: `  referral-agent chat
  referral-agent chat "Refer Jane Doe, DOB 1961-04-12, for exertional chest pain"
  referral-agent chat --context-id 3f2a... "Her insurance is Aetna PPO"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime(shared.RuntimeOptions{WithAgent: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &session{
				agent:     rt.Agent,
				out:       cmd.OutOrStdout(),
				contextID: contextID,
				spinner:   shared.NewSpinner(),
				json:      shared.GetJSON(),
			}
			if len(args) > 0 {
				s.showContext = true
				return s.turn(ctx, strings.Join(args, " "))
			}
			return s.repl(ctx, cmd.InOrStdin(), shared.IsInteractive())
		},
	}

	cmd.Flags().StringVar(&contextID, "context-id", "", "Continue an existing conversation")

	return cmd
}

type session struct {
	agent     Turner
	out       io.Writer
	contextID string
	spinner   *shared.Spinner
	json      bool

	// showContext prints the context ID after each reply so a one-shot
	// conversation can be continued with --context-id.
	showContext bool
}

// repl reads one message per line until EOF, "exit" or cancellation.
// Failed turns are reported and the loop continues.
func (s *session) repl(ctx context.Context, in io.Reader, interactive bool) error {
	if s.contextID == "" {
		s.contextID = uuid.NewString()
	}
	if interactive {
		fmt.Fprintln(s.out, shared.Header.Render("Referral Agent"))
		fmt.Fprintln(s.out, shared.Muted.Render("Type a message, /new for a new conversation, exit to quit."))
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(s.out, shared.Prompt.Render("> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			s.contextID = uuid.NewString()
			fmt.Fprintln(s.out, shared.Muted.Render("Started a new conversation."))
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(s.out, shared.RenderError(pkgerrors.UserMessage(err)))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// turn runs one message through the agent and prints the reply.
func (s *session) turn(ctx context.Context, message string) error {
	s.spinner.Start("Thinking...")
	result, err := s.agent.StreamResult(ctx, message, s.contextID, func(u agent.Update) {
		s.spinner.Update(u.Content)
	})
	s.spinner.Stop()
	if err != nil {
		return shared.NewExecutionError("turn failed", err)
	}
	s.contextID = result.ContextID

	if s.json {
		return shared.EmitJSON(s.out, result)
	}

	fmt.Fprintln(s.out, result.Content)
	if result.IsTaskComplete {
		fmt.Fprintln(s.out, shared.RenderOK("Referral complete"))
	}
	if s.showContext {
		fmt.Fprintln(s.out, shared.Muted.Render("context_id: "+result.ContextID))
	}
	fmt.Fprintln(s.out)
	return nil
}
