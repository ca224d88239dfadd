package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

// errAskFailed is returned once the reason has been printed, so cobra only reports a short line.
var errAskFailed = errors.New("ask failed")

func newAskCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the reply",
		Example: "  quinton ask \"Why is the sky blue?\"\n" +
			"  quinton ask --file paper.pdf \"What is the main result?\"",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			r, err := newREPL(a, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), r, file, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "PDF to upload first, the question is then answered from it")

	return cmd
}

// runAsk uploads file when one is given and sends question. Failures are printed the way the
// interactive chat prints them.
func runAsk(ctx context.Context, r *repl, file, question string) error {
	if file != "" {
		if err := r.selectFile(file); err != nil {
			r.printError(err)
			return errAskFailed
		}
		if err := r.upload(ctx); err != nil {
			r.printError(err)
			return errAskFailed
		}
	}
	if err := r.send(ctx, question); err != nil {
		r.printError(err)
		return errAskFailed
	}
	return nil
}
