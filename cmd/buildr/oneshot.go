// ABOUTME: Terminal modes: a one-shot build (plain or full-screen) that writes the generated page, and HTML validation.
// ABOUTME: Both print validator issues to stderr in the same format.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/tui"
	"github.com/2389-research/buildr/validate"
)

// oneShot runs a single build request and writes the resulting document
// to opts.output, or stdout when no output file is given.
func oneShot(ctx context.Context, gen build.Generator, th build.Thresholds, opts options, stdout, stderr io.Writer) int {
	var lastStage string
	orch := build.NewOrchestrator(gen,
		build.WithThresholds(th),
		build.WithObserver(func(ev build.Event) {
			if ev.Kind == build.EventStatusUpdated && ev.Status != nil && ev.Status.Stage != lastStage {
				lastStage = ev.Status.Stage
				fmt.Fprintf(stderr, "%s\n", lastStage)
			}
		}),
	)

	res, err := orch.Submit(ctx, opts.prompt, opts.submitOptions())
	return report(res, err, opts, stdout, stderr)
}

// oneShotTUI runs the same build inside the full-screen progress view.
// The page is written once the view closes.
func oneShotTUI(ctx context.Context, gen build.Generator, th build.Thresholds, opts options, stdout, stderr io.Writer) int {
	res, err := tui.Run(ctx, gen, opts.prompt, opts.submitOptions(), stderr, build.WithThresholds(th))
	return report(res, err, opts, stdout, stderr)
}

// report turns a settled build into output and an exit code.
func report(res *build.Result, err error, opts options, stdout, stderr io.Writer) int {
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	switch res.Outcome {
	case build.OutcomeFailed:
		msg := "generation failed"
		if res.Failure != nil {
			msg = res.Failure.Message
		}
		fmt.Fprintf(stderr, "error: %s\n", msg)
		return 1
	case build.OutcomeReply:
		if res.Message != nil {
			fmt.Fprintln(stdout, res.Message.Content)
		}
		return 0
	}

	if res.Outcome == build.OutcomePartial {
		fmt.Fprintln(stderr, "warning: the response was cut off; kept the usable part")
	}
	if err := writeDocument(opts.output, res.Document, stdout); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	printIssues(stderr, res.Issues)
	if opts.output != "" {
		fmt.Fprintf(stderr, "wrote %s (%d bytes)\n", opts.output, len(res.Document))
	}
	return 0
}

func writeDocument(path, doc string, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, doc)
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// validateFile checks an HTML file. Only error-severity issues fail.
func validateFile(path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	issues := validate.Validate(string(data))
	printIssues(stderr, issues)
	for _, is := range issues {
		if is.Severity == validate.SeverityError {
			fmt.Fprintln(stderr, "Validation failed.")
			return 1
		}
	}
	fmt.Fprintln(stdout, "Page is valid.")
	return 0
}

func printIssues(w io.Writer, issues []validate.Issue) {
	for _, is := range issues {
		fmt.Fprintf(w, "[%s] %s", is.Severity, is.Message)
		if is.Fix != "" {
			fmt.Fprintf(w, " -- fix: %s", is.Fix)
		}
		fmt.Fprintln(w)
	}
}
