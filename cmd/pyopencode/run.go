package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waysongjiang/pyopencode/internal/command"
	"github.com/waysongjiang/pyopencode/internal/config"
	"github.com/waysongjiang/pyopencode/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var f turnFlags
	var prompt string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single agent turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			env, err := buildEnv(f, "")
			if err != nil {
				return err
			}
			defer env.close()

			printHeader(env, f)
			fmt.Printf("\nYou: %s\n\n", prompt)

			maxSteps := stepBudget(f.maxSteps, env.profile.MaxSteps)
			answer, err := orchestrator.RunTurn(cmd.Context(), env.app, prompt, maxSteps, f.resume)
			if err != nil {
				return err
			}
			printAnswer(answer, f.stream)
			return nil
		},
	}
	addTurnFlags(cmd, &f, 25)
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "user prompt to run once")
	return cmd
}

func newReplCmd() *cobra.Command {
	var f turnFlags

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive loop; /continue resumes pending tool calls, exit/quit leaves",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(f, "")
			if err != nil {
				return err
			}
			defer env.close()

			printHeader(env, f)

			scanner := bufio.NewScanner(os.Stdin)
			maxSteps := stepBudget(f.maxSteps, env.profile.MaxSteps)
			for {
				fmt.Print("You: ")
				if !scanner.Scan() {
					return nil
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "exit" || line == "quit":
					return nil
				}

				resume := f.resume || line == orchestrator.ContinueSentinel
				answer, err := orchestrator.RunTurn(cmd.Context(), env.app, line, maxSteps, resume)
				if err != nil {
					return err
				}
				printAnswer(answer, f.stream)
			}
		},
	}
	addTurnFlags(cmd, &f, 100)
	return cmd
}

func newCmdCmd() *cobra.Command {
	var f turnFlags
	var templateArgs []string

	cmd := &cobra.Command{
		Use:   "cmd NAME",
		Short: "Run a named prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			// The template can override agent/model/max_steps, so the
			// command is loaded before the app context is built.
			cwd, err := resolveCwd(f.cwd)
			if err != nil {
				return err
			}
			behavior, err := config.LoadBehavior(cwd, f.behaviorPath)
			if err != nil {
				return err
			}
			spec, err := command.Load(cwd, name, behavior)
			if err != nil {
				return err
			}

			kv := make(map[string]string, len(templateArgs))
			for _, arg := range templateArgs {
				if k, v, ok := strings.Cut(arg, "="); ok {
					kv[strings.TrimSpace(k)] = v
				}
			}
			prompt := spec.Render(kv)

			local := f
			if local.agentName == "" && spec.Agent != "" {
				local.agentName = spec.Agent
			}
			env, err := buildEnv(local, spec.Model)
			if err != nil {
				return err
			}
			defer env.close()

			printHeader(env, local)
			fmt.Printf("\ncommand: %s\n\n", spec.Name)

			maxSteps := stepBudget(local.maxSteps, env.profile.MaxSteps)
			if spec.MaxSteps > 0 {
				maxSteps = spec.MaxSteps
			}
			answer, err := orchestrator.RunTurn(cmd.Context(), env.app, prompt, maxSteps, local.resume)
			if err != nil {
				return err
			}
			printAnswer(answer, local.stream)
			return nil
		},
	}
	addTurnFlags(cmd, &f, 50)
	cmd.Flags().StringArrayVarP(&templateArgs, "arg", "A", nil, "template args as key=value for {{key}} placeholders")
	return cmd
}

func newContinueRunCmd() *cobra.Command {
	var f turnFlags

	cmd := &cobra.Command{
		Use:   "continue-run",
		Short: "Resume pending tool calls of a session and continue the loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			env, err := buildEnv(f, "")
			if err != nil {
				return err
			}
			defer env.close()

			printHeader(env, f)

			maxSteps := stepBudget(f.maxSteps, env.profile.MaxSteps)
			answer, err := orchestrator.RunTurn(cmd.Context(), env.app, "", maxSteps, true)
			if err != nil {
				return err
			}
			printAnswer(answer, f.stream)
			return nil
		},
	}
	addTurnFlags(cmd, &f, 50)
	return cmd
}

// stepBudget returns the agent profile's max-step override whenever the
// profile sets one (> 0), regardless of --max-steps; otherwise it returns
// the flag value.
func stepBudget(flagValue, profileOverride int) int {
	if profileOverride > 0 {
		return profileOverride
	}
	return flagValue
}

func printHeader(env *appEnv, f turnFlags) {
	fmt.Printf("cwd: %s\nsession: %s\nagent: %s\n", env.app.Cwd, env.app.Session.ID, env.profile.Name)
	if env.behavior.LoadedFrom != "" {
		fmt.Printf("behavior_config: %s\n", env.behavior.LoadedFrom)
	}
}

func printAnswer(answer string, streamed bool) {
	if streamed {
		// Tokens were already printed on the fly; end the line.
		fmt.Println()
		return
	}
	fmt.Printf("\nAssistant:\n\n%s\n", answer)
}
