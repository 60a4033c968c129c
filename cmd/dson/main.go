// dson - Dson codec CLI tool
//
// Usage:
//
//	dson fmt [file]          Reformat Dson text
//	dson encode [file]       Dson text to binary
//	dson decode [file]       Dson binary to text
//	dson from-json [file]    JSON to Dson text
//	dson to-json [file]      Dson text to JSON
//	dson to-cbor [file]      Dson text to CBOR
//	dson from-cbor [file]    CBOR to Dson text
//	dson tokens [file]       Dump the token stream of Dson text or JSON
//	dson hash [file]         Print the canonical BLAKE3 fingerprint of each document
//	dson frames [file]       Decode text or binary frames and print them
//	dson frames demo         Write a sample frame stream
//	dson version             Print version info
//
// If no file is given, or the file is "-", input is read from stdin.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/Neumenon/dson/dson"
)

const libVersion = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// env is everything a command needs: parsed options and the process's
// standard streams.
type env struct {
	settings dson.Settings
	log      *slog.Logger
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer

	// command options
	pretty   bool
	extended bool
	indent   string
	keys     string
	hex      bool
	format   string
	crc      bool
	json     bool
}

type command struct {
	name    string
	summary string
	run     func(e *env, args []string) error
}

var commands = []command{
	{"fmt", "reformat Dson text", cmdFmt},
	{"encode", "Dson text to binary", cmdEncode},
	{"decode", "Dson binary to text", cmdDecode},
	{"from-json", "JSON to Dson text", cmdFromJSON},
	{"to-json", "Dson text to JSON", cmdToJSON},
	{"to-cbor", "Dson text to CBOR", cmdToCBOR},
	{"from-cbor", "CBOR to Dson text", cmdFromCBOR},
	{"tokens", "dump the token stream of Dson text or JSON", cmdTokens},
	{"hash", "print the canonical fingerprint of each document", cmdHash},
	{"frames", "decode frames, or write a sample stream with 'frames demo'", cmdFrames},
	{"version", "print version info", cmdVersion},
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}

	var configPath string
	var verbose bool
	flagSet := pflag.NewFlagSet("dson", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(true)
	flagSet.StringVar(&configPath, "config", "", "YAML settings file")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.BoolVar(&e.pretty, "pretty", false, "put every container element on its own line")
	flagSet.BoolVar(&e.extended, "extended", false, "use $dson markers so JSON round trips losslessly")
	flagSet.StringVar(&e.indent, "indent", "", "indent JSON output with this string")
	flagSet.StringVar(&e.keys, "keys", "", "binary key kind: string or number (default from settings)")
	flagSet.BoolVar(&e.hex, "hex", false, "write or read binary output as hex")
	flagSet.StringVar(&e.format, "format", "text", "payload format for 'frames demo': text or binary")
	flagSet.BoolVar(&e.crc, "crc", true, "add CRCs to frames written by 'frames demo'")
	flagSet.BoolVar(&e.json, "json", false, "tokenize input as JSON")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	e.log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	e.settings = dson.DefaultSettings()
	if configPath != "" {
		s, err := dson.LoadSettings(configPath)
		if err != nil {
			return err
		}
		e.settings = s
		e.log.Debug("loaded settings", "path", configPath)
	}
	e.settings.Logger = e.log
	if e.pretty {
		e.settings.Text.Pretty = true
	}
	if e.keys != "" {
		if err := e.settings.Keys.UnmarshalText([]byte(e.keys)); err != nil {
			return err
		}
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return errUsage
	}
	name, rest := rest[0], rest[1:]
	for _, c := range commands {
		if c.name == name {
			e.log.Debug("running command", "command", name, "args", rest)
			return c.run(e, rest)
		}
	}
	if name == "help" {
		printUsage(stdout, flagSet)
		return nil
	}
	printUsage(stderr, flagSet)
	return fmt.Errorf("unknown command %q", name)
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "dson - Dson codec CLI tool (v%s)\n\nUsage:\n  dson [options] <command> [file]\n\nCommands:\n", libVersion)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nOptions:\n%s\nIf no file is given, reads from stdin.\n", flagSet.FlagUsages())
}

// readInput reads the file named by args[0], or stdin when there is none.
func (e *env) readInput(args []string) ([]byte, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("expected at most one file, got %d", len(args))
	}
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(e.stdin)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	e.log.Debug("read input", "file", args[0], "bytes", len(data))
	return data, nil
}

func cmdVersion(e *env, args []string) error {
	_, err := fmt.Fprintf(e.stdout, "dson %s (frame protocol v1)\n", libVersion)
	return err
}
