package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/params"
)

var synthSeed int64

var synthCmd = &cobra.Command{
	Use:   "synth <product-id>",
	Short: "Print synthetic values for a product's parameters without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynth,
}

func init() {
	synthCmd.Flags().Int64Var(&synthSeed, "seed", 0, "Seed for repeatable output (default from config, 0 = random)")
}

func runSynth(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logs)
	defer a.Close()

	client, err := a.platform()
	if err != nil {
		return err
	}
	defs, err := client.ListProductParameters(ctx, args[0])
	if err != nil {
		return err
	}

	seed := synthSeed
	if seed == 0 {
		seed = cfg.Extension.Seed
	}
	printSynth(cmd.OutOrStdout(), args[0], defs, params.New(seed))
	return nil
}

func printSynth(w io.Writer, productID string, defs []connect.ProductParameter, s *params.Synthesizer) {
	rows := make([][2]string, 0, len(defs))
	for _, def := range defs {
		label := def.Name + " (" + def.Type + ")"
		if !params.IsSupported(def.Type) {
			rows = append(rows, [2]string{label, mutedStyle.Render("no generator")})
			continue
		}
		p, err := s.Synthesize(def.AsParam())
		if err != nil {
			rows = append(rows, [2]string{label, errorStyle.Render(err.Error())})
			continue
		}
		if p.StructuredValue == nil {
			rows = append(rows, [2]string{label, p.Value})
			continue
		}
		data, err := json.Marshal(p.StructuredValue)
		if err != nil {
			rows = append(rows, [2]string{label, errorStyle.Render("cannot render value: " + err.Error())})
			continue
		}
		rows = append(rows, [2]string{label, string(data)})
	}
	if len(rows) == 0 {
		printBox(w, "Parameters of "+productID, mutedStyle.Render("product declares no parameters"))
		return
	}
	printBox(w, fmt.Sprintf("Parameters of %s (%d)", productID, len(rows)), kv(rows...))
}
