package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Neumenon/dson/dson"
	"github.com/Neumenon/dson/stream"
)

func cmdFrames(e *env, args []string) error {
	if len(args) > 0 && args[0] == "demo" {
		return cmdFramesDemo(e)
	}
	data, err := e.readInput(args)
	if err != nil {
		return err
	}
	r, err := stream.NewFrameReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	handler := stream.NewFrameHandler()
	handler.Logger = e.log
	n := 0
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", n+1, err)
		}
		n++
		if err := e.printFrame(n, f); err != nil {
			return err
		}
		if err := handler.Handle(f); err != nil {
			e.log.Warn("frame rejected", "frame", n, "sid", f.SID, "seq", f.Seq, "err", err)
		}
	}

	for _, sid := range handler.Cursor.AllSIDs() {
		state := handler.Cursor.GetReadOnly(sid)
		if state.HasState {
			e.log.Info("stream state", "sid", sid, "seq", state.LastSeq, "digest", stream.HashToHex(state.StateHash)[:16], "final", state.Final)
		}
	}
	e.log.Info("frames decoded", "count", n)
	return nil
}

func (e *env) printFrame(n int, f *stream.Frame) error {
	fmt.Fprintf(e.stdout, "--- Frame %d ---\n", n)
	fmt.Fprintf(e.stdout, "  sid=%d seq=%d kind=%s fmt=%s len=%d\n", f.SID, f.Seq, f.Kind, f.Format, len(f.Payload))
	if f.CRC != nil {
		fmt.Fprintf(e.stdout, "  crc=%08x\n", *f.CRC)
	}
	if f.Base != nil {
		fmt.Fprintf(e.stdout, "  base=blake3:%s\n", stream.HashToHex(*f.Base))
	}
	if f.IsFinal() {
		fmt.Fprintf(e.stdout, "  final=true\n")
	}

	v, err := f.Value()
	if err != nil {
		fmt.Fprintf(e.stdout, "  payload: <%v>\n", err)
		return nil
	}
	if v == nil {
		return nil
	}
	text, err := dson.EncodeText(v, e.settings.Text)
	if err != nil {
		return err
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	_, err = fmt.Fprintf(e.stdout, "  payload: %s\n", text)
	return err
}

// cmdFramesDemo writes a short agent-progress stream: a snapshot, patches
// verified against the previous state digest, and events.
func cmdFramesDemo(e *env) error {
	format, ok := stream.ParseFormat(e.format)
	if !ok {
		return fmt.Errorf("unknown format %q", e.format)
	}
	// binary payloads travel in the binary envelope
	var w stream.FrameWriter
	switch {
	case format == dson.FormatBinary && e.crc:
		w = stream.NewBinaryWriterWithCRC(e.stdout)
	case format == dson.FormatBinary:
		w = stream.NewBinaryWriter(e.stdout)
	case e.crc:
		w = stream.NewWriterWithCRC(e.stdout)
	default:
		w = stream.NewWriter(e.stdout)
	}
	enc := stream.NewEncoder(w, format)
	const sid = 1

	state := dson.NewObject[string](dson.Header{Alias: "AgentState"})
	state.Set("task", dson.String("process_data"))
	state.Set("step", dson.Int32(0))
	state.Set("total_steps", dson.Int32(5))
	if err := enc.WriteDoc(sid, state); err != nil {
		return err
	}
	var current dson.Value = state

	for step := 1; step <= 5; step++ {
		if err := enc.WriteEvent(sid, stream.Progress(float64(step)/5, fmt.Sprintf("processing step %d of 5", step))); err != nil {
			return err
		}

		base, err := stream.StateHash(current)
		if err != nil {
			return err
		}
		patch := dson.NewObject[string](dson.Header{})
		patch.Set("step", dson.Int32(step))
		if err := enc.WritePatch(sid, patch, &base); err != nil {
			return err
		}
		if current, err = stream.MergePatch(current, patch); err != nil {
			return err
		}

		if step%2 == 0 {
			if err := enc.WriteEvent(sid, stream.Counter("items_processed", int64(step))); err != nil {
				return err
			}
		}
	}

	if err := enc.WriteEvent(sid, stream.Artifact("application/json", "blob:results", "results.json")); err != nil {
		return err
	}
	done := dson.NewObject[string](dson.Header{})
	done.Set("status", dson.String("completed"))
	base, err := stream.StateHash(current)
	if err != nil {
		return err
	}
	if err := enc.WritePatch(sid, done, &base); err != nil {
		return err
	}
	if err := enc.WriteFinal(sid, stream.KindEvent, stream.LogInfo("task completed")); err != nil {
		return err
	}
	e.log.Debug("demo stream written", "sid", sid)
	return nil
}
