package main

import (
	"context"
	"fmt"

	"github.com/meetscribe/meetscribe/internal/bus"
	"github.com/meetscribe/meetscribe/internal/daemon"
	"github.com/spf13/cobra"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "meetscribe",
	Short: "Live meeting transcription with on-demand answer suggestions",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		statusCmd(),
		transcriptCmd(),
		markCmd(),
		answerCmd(),
		versionCmd(),
		stopCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run(context.Background())
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle recording on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("t")
			if err != nil {
				return fmt.Errorf("failed to toggle recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get recording and connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("s")
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func transcriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript",
		Short: "Print the current session transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("x")
			if err != nil {
				return fmt.Errorf("failed to get transcript: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func markCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark <line-id>",
		Short: "Mark a transcript line as a question and request an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("m " + args[0])
			if err != nil {
				return fmt.Errorf("failed to mark question: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func answerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <line-id>",
		Short: "Show the answer state for a marked question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("a " + args[0])
			if err != nil {
				return fmt.Errorf("failed to get answer: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("v")
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand("q")
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}
