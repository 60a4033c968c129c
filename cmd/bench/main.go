// bench - Dson benchmark runner
//
// Compares Dson text and binary encodings with minified JSON and CBOR:
//   - Bytes on wire
//   - Approximate token counts for the text forms (byte-based heuristics)
//   - Encode and decode time per document
//
// Output: CSV and markdown summary
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/Neumenon/dson/dson"
)

type CaseResult struct {
	Name        string
	JSONBytes   int
	TextBytes   int
	BinaryBytes int
	CBORBytes   int
	JSONTokens  int
	TextTokens  int

	// mean time per operation
	JSONEncode, JSONDecode     time.Duration
	TextEncode, TextDecode     time.Duration
	BinaryEncode, BinaryDecode time.Duration
	CBOREncode, CBORDecode     time.Duration
}

type Manifest struct {
	Version     string `json:"version"`
	Description string `json:"description"`
	Cases       []struct {
		Name string `json:"name"`
		File string `json:"file"`
	} `json:"cases"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var corpus, outDir string
	var iterations int
	flagSet := pflag.NewFlagSet("bench", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&corpus, "corpus", "", "directory holding manifest.json (default: search testdata/corpus)")
	flagSet.StringVar(&outDir, "out", "", "write bench_results.csv and BENCH.md here (default: no files)")
	flagSet.IntVarP(&iterations, "iterations", "n", 2000, "timed iterations per case and codec")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if iterations < 1 {
		return fmt.Errorf("--iterations must be positive")
	}

	if corpus == "" {
		corpus = findTestdata()
		if corpus == "" {
			return fmt.Errorf("cannot find testdata/corpus; pass --corpus")
		}
	}
	manifest, err := loadManifest(corpus)
	if err != nil {
		return err
	}

	fmt.Fprintf(stderr, "Dson Benchmark Runner\n")
	fmt.Fprintf(stderr, "=====================\n")
	fmt.Fprintf(stderr, "Corpus: %s (%d cases)\n\n", manifest.Version, len(manifest.Cases))

	var results []CaseResult
	for _, c := range manifest.Cases {
		data, err := os.ReadFile(filepath.Join(corpus, c.File))
		if err != nil {
			fmt.Fprintf(stderr, "Skip %s: %v\n", c.Name, err)
			continue
		}
		r, err := measureCase(c.Name, data, iterations)
		if err != nil {
			fmt.Fprintf(stderr, "Skip %s: %v\n", c.Name, err)
			continue
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return fmt.Errorf("no case could be measured")
	}

	if outDir != "" {
		if err := writeFile(filepath.Join(outDir, "bench_results.csv"), func(w io.Writer) { writeCSV(w, results) }); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(outDir, "BENCH.md"), func(w io.Writer) { writeMarkdown(w, results, manifest.Version) }); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Results written to: %s\n", outDir)
	}

	t := totals(results)
	fmt.Fprintf(stdout, "\n=== SUMMARY ===\n")
	fmt.Fprintf(stdout, "Cases:        %d\n", len(results))
	fmt.Fprintf(stdout, "JSON total:   %d bytes, ~%d tokens\n", t.JSONBytes, t.JSONTokens)
	fmt.Fprintf(stdout, "Text total:   %d bytes, ~%d tokens (%.1f%% of JSON)\n", t.TextBytes, t.TextTokens, pct(t.TextBytes, t.JSONBytes))
	fmt.Fprintf(stdout, "Binary total: %d bytes (%.1f%% of JSON)\n", t.BinaryBytes, pct(t.BinaryBytes, t.JSONBytes))
	fmt.Fprintf(stdout, "CBOR total:   %d bytes (%.1f%% of JSON)\n", t.CBORBytes, pct(t.CBORBytes, t.JSONBytes))
	return nil
}

func loadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func writeFile(path string, fn func(io.Writer)) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	fn(f)
	return f.Close()
}

// measureCase converts one JSON document to every encoding, checks that
// each decodes back to the same document, and times both directions.
func measureCase(name string, data []byte, iterations int) (CaseResult, error) {
	v, err := dson.FromJSON(data)
	if err != nil {
		return CaseResult{}, fmt.Errorf("parse error: %w", err)
	}
	jsonMin, err := dson.ToJSON(v)
	if err != nil {
		return CaseResult{}, err
	}
	settings := dson.DefaultTextSettings()
	text, err := dson.EncodeText(v, settings)
	if err != nil {
		return CaseResult{}, err
	}
	bin, err := dson.EncodeBinary[string](v)
	if err != nil {
		return CaseResult{}, err
	}
	cborData, err := dson.ToCBOR(v)
	if err != nil {
		return CaseResult{}, err
	}

	// strict JSON drops number widths, so it only has to reproduce itself
	back, err := dson.FromJSON(jsonMin)
	if err != nil {
		return CaseResult{}, fmt.Errorf("json decode: %w", err)
	}
	if again, err := dson.ToJSON(back); err != nil || string(again) != string(jsonMin) {
		return CaseResult{}, fmt.Errorf("json round trip changed the document")
	}
	checks := map[string]func() (dson.Value, error){
		"text":   func() (dson.Value, error) { return dson.DecodeText(text) },
		"binary": func() (dson.Value, error) { return dson.DecodeBinary[string](bin) },
		"cbor":   func() (dson.Value, error) { return dson.FromCBOR(cborData) },
	}
	for codec, decode := range checks {
		back, err := decode()
		if err != nil {
			return CaseResult{}, fmt.Errorf("%s decode: %w", codec, err)
		}
		if !dson.EqualCanonical(back, v) {
			return CaseResult{}, fmt.Errorf("%s round trip changed the document", codec)
		}
	}

	r := CaseResult{
		Name:        name,
		JSONBytes:   len(jsonMin),
		TextBytes:   len(text),
		BinaryBytes: len(bin),
		CBORBytes:   len(cborData),
		JSONTokens:  estimateTokens(string(jsonMin)),
		TextTokens:  estimateTokens(text),
	}
	r.JSONEncode = timeOp(iterations, func() error { _, err := dson.ToJSON(v); return err })
	r.JSONDecode = timeOp(iterations, func() error { _, err := dson.FromJSON(jsonMin); return err })
	r.TextEncode = timeOp(iterations, func() error { _, err := dson.EncodeText(v, settings); return err })
	r.TextDecode = timeOp(iterations, func() error { _, err := dson.DecodeText(text); return err })
	r.BinaryEncode = timeOp(iterations, func() error { _, err := dson.EncodeBinary[string](v); return err })
	r.BinaryDecode = timeOp(iterations, func() error { _, err := dson.DecodeBinary[string](bin); return err })
	r.CBOREncode = timeOp(iterations, func() error { _, err := dson.ToCBOR(v); return err })
	r.CBORDecode = timeOp(iterations, func() error { _, err := dson.FromCBOR(cborData); return err })
	return r, nil
}

// timeOp returns the mean duration of op over n runs. Errors were already
// ruled out by the round trip check, so they are ignored here.
func timeOp(n int, op func() error) time.Duration {
	start := time.Now()
	for i := 0; i < n; i++ {
		_ = op()
	}
	return time.Since(start) / time.Duration(n)
}

func totals(results []CaseResult) CaseResult {
	var t CaseResult
	for _, r := range results {
		t.JSONBytes += r.JSONBytes
		t.TextBytes += r.TextBytes
		t.BinaryBytes += r.BinaryBytes
		t.CBORBytes += r.CBORBytes
		t.JSONTokens += r.JSONTokens
		t.TextTokens += r.TextTokens
	}
	return t
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// estimateTokens provides a rough token count approximation
// Based on cl100k_base behavior: ~4 chars per token for ASCII,
// punctuation and special chars often get their own tokens
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}

	tokens := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isPunctuation(c):
			tokens++
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			// whitespace merges with adjacent tokens
			i++
		case c >= '0' && c <= '9':
			n := 0
			for i < len(s) && isNumberByte(s[i]) {
				n++
				i++
			}
			tokens += (n + 3) / 4
		case isAlpha(c):
			n := 0
			for i < len(s) && (isAlpha(s[i]) || (s[i] >= '0' && s[i] <= '9')) {
				n++
				i++
			}
			tokens += (n + 3) / 4
		default:
			tokens++
			i++
		}
	}
	return max(1, tokens)
}

func isPunctuation(c byte) bool {
	switch c {
	case '{', '}', '[', ']', '(', ')', ':', ',', '"', '\'', '=', '@', '.', ';', '!', '?':
		return true
	}
	return false
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func findTestdata() string {
	for _, p := range []string{
		"testdata/corpus",
		"cmd/bench/testdata/corpus",
		"../cmd/bench/testdata/corpus",
	} {
		if _, err := os.Stat(filepath.Join(p, "manifest.json")); err == nil {
			return p
		}
	}
	return ""
}

func writeCSV(w io.Writer, results []CaseResult) {
	fmt.Fprintln(w, "name,json_bytes,text_bytes,binary_bytes,cbor_bytes,json_tokens,text_tokens,"+
		"json_enc_ns,json_dec_ns,text_enc_ns,text_dec_ns,binary_enc_ns,binary_dec_ns,cbor_enc_ns,cbor_dec_ns")
	for _, r := range results {
		fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name, r.JSONBytes, r.TextBytes, r.BinaryBytes, r.CBORBytes, r.JSONTokens, r.TextTokens,
			r.JSONEncode.Nanoseconds(), r.JSONDecode.Nanoseconds(),
			r.TextEncode.Nanoseconds(), r.TextDecode.Nanoseconds(),
			r.BinaryEncode.Nanoseconds(), r.BinaryDecode.Nanoseconds(),
			r.CBOREncode.Nanoseconds(), r.CBORDecode.Nanoseconds())
	}
}

func writeMarkdown(w io.Writer, results []CaseResult, version string) {
	t := totals(results)
	fmt.Fprintf(w, "# Dson Benchmark Results\n\n")
	fmt.Fprintf(w, "**Date:** %s  \n", time.Now().UTC().Format("2006-01-02"))
	fmt.Fprintf(w, "**Corpus:** %s (%d cases)  \n\n", version, len(results))

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Encoding | Bytes | vs JSON |\n")
	fmt.Fprintf(w, "|----------|-------|---------|\n")
	fmt.Fprintf(w, "| JSON (minified) | %d | 100.0%% |\n", t.JSONBytes)
	fmt.Fprintf(w, "| Dson text | %d | %.1f%% |\n", t.TextBytes, pct(t.TextBytes, t.JSONBytes))
	fmt.Fprintf(w, "| Dson binary | %d | %.1f%% |\n", t.BinaryBytes, pct(t.BinaryBytes, t.JSONBytes))
	fmt.Fprintf(w, "| CBOR | %d | %.1f%% |\n\n", t.CBORBytes, pct(t.CBORBytes, t.JSONBytes))
	fmt.Fprintf(w, "Estimated tokens: JSON ~%d, Dson text ~%d.\n\n", t.JSONTokens, t.TextTokens)

	sorted := make([]CaseResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return pct(sorted[i].BinaryBytes, sorted[i].JSONBytes) < pct(sorted[j].BinaryBytes, sorted[j].JSONBytes)
	})
	fmt.Fprintf(w, "## Sizes\n\n")
	fmt.Fprintf(w, "| Case | JSON | Text | Binary | CBOR |\n")
	fmt.Fprintf(w, "|------|------|------|--------|------|\n")
	for _, r := range sorted {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d |\n", truncateName(r.Name, 25), r.JSONBytes, r.TextBytes, r.BinaryBytes, r.CBORBytes)
	}

	fmt.Fprintf(w, "\n## Timings (per document)\n\n")
	fmt.Fprintf(w, "| Case | JSON enc/dec | Text enc/dec | Binary enc/dec | CBOR enc/dec |\n")
	fmt.Fprintf(w, "|------|--------------|--------------|----------------|--------------|\n")
	for _, r := range results {
		fmt.Fprintf(w, "| %s | %s / %s | %s / %s | %s / %s | %s / %s |\n", truncateName(r.Name, 25),
			r.JSONEncode, r.JSONDecode, r.TextEncode, r.TextDecode,
			r.BinaryEncode, r.BinaryDecode, r.CBOREncode, r.CBORDecode)
	}

	fmt.Fprintf(w, "\n## Methodology\n\n")
	fmt.Fprintf(w, "- Every case is parsed once with `dson.FromJSON`; all encodings are produced from that value.\n")
	fmt.Fprintf(w, "- **JSON:** strict `dson.ToJSON`, no whitespace.\n")
	fmt.Fprintf(w, "- **Dson text:** `dson.EncodeText` with default settings.\n")
	fmt.Fprintf(w, "- **Dson binary:** `dson.EncodeBinary` with string keys.\n")
	fmt.Fprintf(w, "- **CBOR:** `dson.ToCBOR`, core deterministic encoding.\n")
	fmt.Fprintf(w, "- **Tokens:** estimated with cl100k_base-like heuristics.\n")
}

func truncateName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
