package editor

import (
	"encoding/json"
	"fmt"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/layout"
)

// CommandKind names a recorded drawing operation.
type CommandKind string

const (
	CmdFill CommandKind = "fill"
	CmdText CommandKind = "text"
	CmdLine CommandKind = "line"
)

// Command is one recorded drawing operation. Only the fields of its kind
// are set.
type Command struct {
	Kind  CommandKind         `json:"kind"`
	Rect  coords.DisplayRect  `json:"rect,omitempty"`
	Text  *Text               `json:"text,omitempty"`
	From  coords.DisplayPoint `json:"from,omitempty"`
	To    coords.DisplayPoint `json:"to,omitempty"`
	Width float64             `json:"width,omitempty"`
	Color contentstream.Color `json:"color"`
}

// Recorder is a Surface that keeps what is drawn on it. Its commands can
// be cached and replayed onto another surface later.
type Recorder struct {
	Commands []Command
}

func (r *Recorder) FillRect(rect coords.DisplayRect, c contentstream.Color) error {
	r.Commands = append(r.Commands, Command{Kind: CmdFill, Rect: rect, Color: c})
	return nil
}

func (r *Recorder) DrawText(t Text) error {
	r.Commands = append(r.Commands, Command{Kind: CmdText, Text: &t, Color: t.Color})
	return nil
}

func (r *Recorder) DrawLine(from, to coords.DisplayPoint, width float64, c contentstream.Color) error {
	r.Commands = append(r.Commands, Command{Kind: CmdLine, From: from, To: to, Width: width, Color: c})
	return nil
}

func (r *Recorder) Reset() { r.Commands = r.Commands[:0] }

func (r *Recorder) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Commands)
}

func (r *Recorder) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Commands)
}

// Replay draws cmds onto surf. Text commands loaded from JSON carry no
// font; they are resolved again with eng.
func Replay(cmds []Command, surf Surface, eng *layout.Engine) error {
	if surf == nil {
		return ErrSurfaceUnavailable
	}
	for i, c := range cmds {
		var err error
		switch c.Kind {
		case CmdFill:
			err = surf.FillRect(c.Rect, c.Color)
		case CmdLine:
			err = surf.DrawLine(c.From, c.To, c.Width, c.Color)
		case CmdText:
			if c.Text == nil {
				return fmt.Errorf("command %d: text command without text", i)
			}
			t := *c.Text
			if t.Font == nil && eng != nil {
				t.Font, _ = eng.Font(t.Face)
			}
			err = surf.DrawText(t)
		default:
			return fmt.Errorf("command %d: unknown kind %q", i, c.Kind)
		}
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}
