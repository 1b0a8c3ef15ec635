package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/justapithecus/loom/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	frags := []*types.InboundFragment{
		{Role: types.RoleAssistant, Kind: types.FragmentMessage, MessageID: "msg-1", IsStart: true},
		{Role: types.RoleAssistant, Kind: types.FragmentCode, Format: "python", Content: "print(1)"},
		{Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "1\n", IsEnd: true},
	}
	for _, f := range frags {
		if err := enc.WriteFragment(f); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	dec := NewFrameDecoder(&buf)
	for i, want := range frags {
		got, err := dec.ReadFragment()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got.Role != want.Role || got.Kind != want.Kind || got.Format != want.Format {
			t.Errorf("frame %d: got %+v, want %+v", i, got, want)
		}
		if want.Content != nil && got.Text() != want.Content.(string) {
			t.Errorf("frame %d: content %q, want %q", i, got.Text(), want.Content)
		}
		if got.IsStart != want.IsStart || got.IsEnd != want.IsEnd {
			t.Errorf("frame %d: markers %v/%v, want %v/%v",
				i, got.IsStart, got.IsEnd, want.IsStart, want.IsEnd)
		}
	}

	if _, err := dec.ReadFragment(); err != io.EOF {
		t.Errorf("expected EOF after last frame, got %v", err)
	}
}

func TestFrameRoundTrip_StructuredContent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	frag := &types.InboundFragment{
		Role: types.RoleComputer,
		Kind: types.FragmentMedia,
		Content: map[string]any{
			"images": []any{map[string]any{"img_src": "a.png"}},
		},
	}
	if err := enc.WriteFragment(frag); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewFrameDecoder(&buf).ReadFragment()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, ok := got.Content.(map[string]any)
	if !ok {
		t.Fatalf("content decoded as %T, want map[string]any", got.Content)
	}
	list, ok := m["images"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("images list not preserved: %#v", m)
	}
	if _, ok := list[0].(map[string]any); !ok {
		t.Fatalf("element decoded as %T, want map[string]any", list[0])
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxPayloadSize+1)
	buf.Write(lengthBuf[:])

	_, err := NewFrameDecoder(&buf).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected FrameErrorTooLarge, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("oversized frame must be fatal")
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 100)
	buf.Write(lengthBuf[:])
	buf.WriteString("short")

	_, err := NewFrameDecoder(&buf).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorPartial {
		t.Fatalf("expected FrameErrorPartial, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("truncated frame must be fatal")
	}
}

func TestDecodeFragment_Garbage(t *testing.T) {
	_, err := DecodeFragment([]byte{0xc1, 0xff, 0x00})
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors are recoverable, not fatal")
	}
}
