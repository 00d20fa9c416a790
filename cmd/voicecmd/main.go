// voicecmd is the interactive command-line front end: it reads
// utterances from a flag or stdin, resolves them, and drives the gated
// sequencer with a terminal confirmation prompt and optional spoken
// feedback.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/config"
	"github.com/deca/voicecmd/internal/executor"
	"github.com/deca/voicecmd/internal/llm"
	"github.com/deca/voicecmd/internal/planner"
	"github.com/deca/voicecmd/internal/prompt"
	"github.com/deca/voicecmd/internal/rules"
	"github.com/deca/voicecmd/internal/safety"
	"github.com/deca/voicecmd/internal/sequencer"
	"github.com/deca/voicecmd/internal/speech"
	"github.com/deca/voicecmd/internal/verbalizer"
)

var exitWords = map[string]bool{
	"exit": true, "quit": true, "退出": true, "拜拜": true, "再见": true,
}

func main() {
	var (
		text   string
		dryRun bool
		noLLM  bool
		loop   bool
		speak  bool
	)

	root := &cobra.Command{
		Use:   "voicecmd",
		Short: "Natural-language command assistant",
		Long:  "Resolves a natural-language utterance into structured commands and executes them after confirmation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(text, dryRun, noLLM, loop, speak)
		},
	}

	root.Flags().StringVarP(&text, "text", "t", "", "process a single utterance and exit")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "describe what would run without executing")
	root.Flags().BoolVar(&noLLM, "no-llm", false, "rule-based resolution only")
	root.Flags().BoolVarP(&loop, "loop", "l", false, "keep reading utterances from stdin")
	root.Flags().BoolVar(&speak, "speak", false, "speak acknowledgements and results aloud")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(text string, dryRun, noLLM, loop, speak bool) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !noLLM && !dryRun {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, "LLM_API_KEY not set; use --no-llm for rule-based resolution")
			return err
		}
	}

	matcher := rules.NewMatcher()
	if cfg.RulesFile != "" {
		matcher, err = rules.LoadMatcher(cfg.RulesFile)
		if err != nil {
			return err
		}
	}

	var parser *llm.Parser
	if !noLLM {
		prompts := prompt.New(cfg.PromptsDir, log)
		parser = llm.NewParser(llm.NewClient(cfg, log), prompts, cfg.LLMMaxRetries, log)
	}

	resolver := planner.New(parser, matcher, safety.New(matcher, cfg.ConfirmDangerous), log)
	actuator := executor.New(cfg.ActuatorTimeout, log)
	verbal := verbalizer.New()

	var speaker speech.Speaker = speech.NullSpeaker{}
	if speak {
		speaker = speech.NewSaySpeaker(log)
	}

	seq := sequencer.New(actuator, terminalConfirmer{}, dryRun || cfg.DryRun, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if text != "" {
		process(ctx, text, resolver, seq, verbal, speaker)
		return nil
	}

	fmt.Println("Ready. Type an utterance (exit to quit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			speaker.Speak(ctx, "再见！")
			break
		}
		process(ctx, line, resolver, seq, verbal, speaker)
		if !loop {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

// process resolves one utterance and runs it through the sequencer.
func process(ctx context.Context, text string, resolver *planner.Resolver, seq *sequencer.Sequencer, verbal *verbalizer.Verbalizer, speaker speech.Speaker) {
	res := resolver.Resolve(ctx, text)

	var report sequencer.Report
	if res.IsPlan() {
		fmt.Printf("Plan: %s (%d steps)\n", res.Plan.Summary, len(res.Plan.Steps))
		for i, step := range res.Plan.Steps {
			fmt.Printf("  %d. [%s] %v\n", i+1, step.Name, step.Slots)
		}
		report = seq.RunPlan(ctx, *res.Plan)
		reply := verbal.PlanSummary(res.Plan.Steps, report.Results)
		fmt.Println(reply)
		speaker.Speak(ctx, reply)
		return
	}

	intent := *res.Intent
	fmt.Printf("Intent: %s  Slots: %v  Confirm: %v  Risk: %s\n",
		intent.Name, intent.Slots, intent.Confirm, intent.Safety.Risk)
	speaker.Speak(ctx, verbal.Confirmation(intent))

	report = seq.RunIntent(ctx, intent)
	if len(report.Results) > 0 {
		reply := verbal.Result(intent, report.Results[0])
		fmt.Println(reply)
		speaker.Speak(ctx, reply)
	} else if report.Reason != "" {
		fmt.Println(report.Reason)
	}
}

// terminalConfirmer asks on stdin.
type terminalConfirmer struct{}

func (terminalConfirmer) Ask(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes" || answer == "是", nil
}
