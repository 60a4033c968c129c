package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Neumenon/dson/dson"
)

// ============================================================
// Text helpers
// ============================================================

func (e *env) readDocs(args []string) ([]dson.Value, error) {
	data, err := e.readInput(args)
	if err != nil {
		return nil, err
	}
	docs, err := dson.DecodeTextAll(string(data))
	if err != nil {
		return nil, err
	}
	e.log.Debug("parsed text", "documents", len(docs))
	return docs, nil
}

func (e *env) writeText(docs ...dson.Value) error {
	for _, v := range docs {
		text, err := dson.EncodeText(dson.StringKeys(v), e.settings.Text)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(e.stdout, text); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) writeBytes(data []byte) error {
	if e.hex {
		_, err := fmt.Fprintln(e.stdout, hex.EncodeToString(data))
		return err
	}
	_, err := e.stdout.Write(data)
	return err
}

func (e *env) readBytes(args []string) ([]byte, error) {
	data, err := e.readInput(args)
	if err != nil || !e.hex {
		return data, err
	}
	decoded, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
	if err != nil {
		return nil, fmt.Errorf("decode hex input: %w", err)
	}
	return decoded, nil
}

// ============================================================
// Commands
// ============================================================

func cmdFmt(e *env, args []string) error {
	docs, err := e.readDocs(args)
	if err != nil {
		return err
	}
	return e.writeText(docs...)
}

func cmdEncode(e *env, args []string) error {
	docs, err := e.readDocs(args)
	if err != nil {
		return err
	}
	var out []byte
	for i, v := range docs {
		var data []byte
		if e.settings.Keys == dson.KeyNumber {
			nv, err := dson.NumberKeys(v)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
			data, err = dson.EncodeBinary[dson.FieldNumber](nv)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
		} else {
			data, err = dson.EncodeBinary[string](v)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
		}
		out = append(out, data...)
	}
	e.log.Debug("encoded binary", "documents", len(docs), "bytes", len(out))
	return e.writeBytes(out)
}

func cmdDecode(e *env, args []string) error {
	data, err := e.readBytes(args)
	if err != nil {
		return err
	}
	var docs []dson.Value
	if e.settings.Keys == dson.KeyNumber {
		docs, err = dson.DecodeBinaryAll[dson.FieldNumber](data)
	} else {
		docs, err = dson.DecodeBinaryAll[string](data)
	}
	if err != nil {
		return err
	}
	return e.writeText(docs...)
}

func (e *env) bridgeOpts() dson.BridgeOpts {
	return dson.BridgeOpts{Extended: e.extended, Indent: e.indent}
}

func cmdFromJSON(e *env, args []string) error {
	data, err := e.readInput(args)
	if err != nil {
		return err
	}
	v, err := dson.FromJSONWithOpts(data, e.bridgeOpts())
	if err != nil {
		return err
	}
	return e.writeText(v)
}

func cmdToJSON(e *env, args []string) error {
	docs, err := e.readDocs(args)
	if err != nil {
		return err
	}
	for _, v := range docs {
		out, err := dson.ToJSONWithOpts(v, e.bridgeOpts())
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(e.stdout, "%s\n", out); err != nil {
			return err
		}
	}
	return nil
}

func cmdToCBOR(e *env, args []string) error {
	docs, err := e.readDocs(args)
	if err != nil {
		return err
	}
	if len(docs) != 1 {
		return fmt.Errorf("to-cbor takes exactly one document, got %d", len(docs))
	}
	out, err := dson.ToCBOR(docs[0])
	if err != nil {
		return err
	}
	return e.writeBytes(out)
}

func cmdFromCBOR(e *env, args []string) error {
	data, err := e.readBytes(args)
	if err != nil {
		return err
	}
	v, err := dson.FromCBOR(data)
	if err != nil {
		return err
	}
	return e.writeText(v)
}

func cmdTokens(e *env, args []string) error {
	data, err := e.readInput(args)
	if err != nil {
		return err
	}
	var src dson.TokenSource
	if e.json {
		src = dson.NewJSONTokenSource(data)
	} else {
		src = dson.NewScanner(dson.NewStringSource(string(data)))
	}
	toks, err := dson.Tokenize(src)
	for _, t := range toks {
		nl := ""
		if t.NewlineBefore {
			nl = " nl"
		}
		fmt.Fprintf(e.stdout, "%-8s %s%s\n", t.Pos, t, nl)
	}
	return err
}

func cmdHash(e *env, args []string) error {
	docs, err := e.readDocs(args)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, v := range docs {
		fp, err := dson.Fingerprint(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "blake3:%s\n", fp)
	}
	_, err = e.stdout.Write(buf.Bytes())
	return err
}
