// Command ttlvdump renders TTLV messages as human-readable trees.
//
// ttlvdump reads a hex dump from a file or standard input, decodes it and
// prints one line per TTLV item:
//
//	$ echo 42006A02000000040000002A00000000 | ttlvdump
//	Tag: 0x42006A, Type: Integer (0x02), Data: 42
//
// The input may contain whitespace, quotes and commas between bytes, so
// dumps copied out of logs, packet captures or JSON fixtures work
// unchanged.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/NLnetLabs/kmip-ttlv"
	"github.com/NLnetLabs/kmip-ttlv/wire"
	"github.com/urfave/cli/v2"
)

func app() *cli.App {
	return &cli.App{
		Name:      "ttlvdump",
		Usage:     "Render TTLV hex dumps as readable trees",
		ArgsUsage: "[FILE]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "max-bytes",
				Usage: "Largest accepted message size",
				Value: 1 << 20,
			},
			&cli.BoolFlag{
				Name:  "redact",
				Usage: "Replace primitive values by their lengths",
			},
			&cli.StringFlag{
				Name:  "tags",
				Usage: "TOML file with tag names to annotate the dump",
			},
		},
		Action: dump,
	}
}

func dump(cliContext *cli.Context) error {
	if cliContext.NArg() > 1 {
		return fmt.Errorf("at most one input file, got %d", cliContext.NArg())
	}
	input := io.Reader(os.Stdin)
	if name := cliContext.Args().First(); name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}
	raw, err := io.ReadAll(input)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(cleanHex(string(raw)))
	if err != nil {
		return fmt.Errorf("input is not a hex dump: %w", err)
	}
	if max := cliContext.Int64("max-bytes"); max > 0 && int64(len(data)) > max {
		return fmt.Errorf("message of %d bytes exceeds --max-bytes=%d", len(data), max)
	}

	printer := ttlv.PrettyPrinter{}
	if file := cliContext.String("tags"); file != "" {
		if printer.TagNames, err = loadTagNames(file); err != nil {
			return err
		}
	}
	out := printer.ToString
	if cliContext.Bool("redact") {
		out = printer.ToDiagString
	}
	fmt.Fprint(cliContext.App.Writer, out(data))
	return nil
}

// cleanHex strips the separators commonly found in pasted hex dumps.
func cleanHex(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '"', ',':
			return -1
		}
		return r
	}, s)
}

// loadTagNames reads a TOML table mapping tags to display names:
//
//	[tags]
//	"0x420069" = "Protocol Version"
func loadTagNames(file string) (map[wire.Tag]string, error) {
	var doc struct {
		Tags map[string]string `toml:"tags"`
	}
	if _, err := toml.DecodeFile(file, &doc); err != nil {
		return nil, err
	}
	names := make(map[wire.Tag]string, len(doc.Tags))
	for s, name := range doc.Tags {
		tag, err := wire.ParseTag(s)
		if err != nil {
			return nil, err
		}
		names[tag] = name
	}
	return names, nil
}

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ttlvdump: %v\n", err)
		os.Exit(1)
	}
}
