package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tracker-codec/internal/payload"
)

type analyzeFlags struct {
	port     uint8
	encoding string
	flagSet  string
	json     bool
}

func newRootCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "payload-analyze [hex]",
		Short: "Decode LoRaWAN animal-tracker payloads",
		Long: "payload-analyze decodes tracker uplink bodies and runs the integrity, " +
			"plausibility and consistency checks over them.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return runInteractive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f, opts)
			}
			return runAnalyze(cmd.OutOrStdout(), f, opts, args[0])
		},
	}
	cmd.Flags().Uint8VarP(&f.port, "port", "p", uint8(payload.PortLocationFixed), "LoRaWAN fPort (2 = location fixed, 1 = status update)")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "coordinate encoding: offset-micro or signed-e7")
	cmd.Flags().StringVar(&f.flagSet, "flag-set", "", "status flag meanings: alarm, motion or fix")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the analysis as JSON")

	cmd.AddCommand(newSimulateCmd())
	return cmd
}

func (f analyzeFlags) options() ([]payload.Option, error) {
	var opts []payload.Option
	if f.encoding != "" {
		enc, err := payload.ParseCoordinateEncoding(f.encoding)
		if err != nil {
			return nil, err
		}
		opts = append(opts, payload.WithCoordinateEncoding(enc))
	}
	if f.flagSet != "" {
		fs, err := payload.ParseFlagSet(f.flagSet)
		if err != nil {
			return nil, err
		}
		opts = append(opts, payload.WithFlagSet(fs))
	}
	return opts, nil
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func runInteractive(ctx context.Context, in io.Reader, out io.Writer, f analyzeFlags, opts []payload.Option) error {
	scanner := bufio.NewScanner(in)
	logrus.Info("payload analyze mode. Paste a hex payload and press Enter (Ctrl+D to exit).")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(out, f, opts, line); err != nil {
			logrus.WithError(err).Error("failed to decode payload")
		}
	}
	return scanner.Err()
}

func runAnalyze(out io.Writer, f analyzeFlags, opts []payload.Option, hexPayload string) error {
	a, err := payload.Analyze(hexPayload, payload.FramePort(f.port), opts...)
	if err != nil {
		return err
	}
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	render(out, a)
	return nil
}
