package contentstream

import (
	"context"
	"errors"
	"math"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
)

// Glyph is one character code placed on the page. Positions and lengths
// are in document space (default user space, origin bottom-left).
type Glyph struct {
	Text string
	Font string
	// FontSize is the Tf operand; Size is the resulting height on the page.
	FontSize float64
	Size     float64
	// Matrix is the text rendering matrix at the glyph origin.
	Matrix  coords.Matrix
	Origin  coords.Point
	Advance float64
	// Space marks glyphs that received word spacing.
	Space    bool
	Vertical bool
	Mode     TextRenderMode
	Color    Color
	// Show numbers the text-showing operator that produced the glyph.
	Show int
}

// FontEntry is a font resource ready for decoding.
type FontEntry struct {
	Name    string
	Decoder *fonts.Decoder
	// scale converts decoder widths to thousandths of text space; Type 3
	// fonts derive it from /FontMatrix.
	scale float64
}

type Config struct {
	Resolver raw.Resolver
	// Load decodes stream payloads (fonts, CMaps, form XObjects).
	Load fonts.StreamLoader
	// Widths measures standard fonts that carry no /Widths.
	Widths   fonts.WidthFunc
	MaxDepth int
	Logger   observability.Logger
}

func (c Config) withDefaults() Config {
	if c.Resolver == nil {
		c.Resolver = raw.Direct
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 12
	}
	c.Logger = observability.OrNop(c.Logger)
	return c
}

// Interpreter runs content streams and collects glyph placements. An
// Interpreter is not safe for concurrent use; font decoders are cached
// across runs.
type Interpreter struct {
	cfg   Config
	proc  *Processor
	fonts map[*raw.DictObj]*FontEntry

	ctx    context.Context
	glyphs []Glyph
	show   int
	tm     coords.Matrix
	tlm    coords.Matrix
	forms  map[*raw.StreamObj]bool
}

func NewInterpreter(cfg Config) *Interpreter {
	in := &Interpreter{cfg: cfg.withDefaults(), fonts: make(map[*raw.DictObj]*FontEntry)}
	p := NewProcessor()
	p.RegisterHandler("q", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		ec.GraphicsState.Save()
		return nil
	}))
	p.RegisterHandler("Q", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		// unbalanced Q is common in the wild
		_ = ec.GraphicsState.Restore()
		return nil
	}))
	p.RegisterHandler("cm", HandlerFunc(in.concat))
	p.RegisterHandler("BT", HandlerFunc(func(*ExecutionContext, Operation) error {
		in.tm, in.tlm = coords.Identity(), coords.Identity()
		return nil
	}))
	p.RegisterHandler("Tc", textParam(func(ts *TextState, v float64) { ts.CharSpacing = v }))
	p.RegisterHandler("Tw", textParam(func(ts *TextState, v float64) { ts.WordSpacing = v }))
	p.RegisterHandler("Tz", textParam(func(ts *TextState, v float64) { ts.Scale = v }))
	p.RegisterHandler("TL", textParam(func(ts *TextState, v float64) { ts.Leading = v }))
	p.RegisterHandler("Ts", textParam(func(ts *TextState, v float64) { ts.Rise = v }))
	p.RegisterHandler("Tr", textParam(func(ts *TextState, v float64) { ts.RenderMode = TextRenderMode(v) }))
	p.RegisterHandler("Tf", HandlerFunc(in.setFont))
	p.RegisterHandler("Td", HandlerFunc(in.moveText))
	p.RegisterHandler("TD", HandlerFunc(func(ec *ExecutionContext, op Operation) error {
		if v, ok := numbers(in.cfg.Resolver, op.Operands, 2); ok {
			ec.GraphicsState.Text.Leading = -v[1]
		}
		return in.moveText(ec, op)
	}))
	p.RegisterHandler("Tm", HandlerFunc(func(_ *ExecutionContext, op Operation) error {
		if v, ok := numbers(in.cfg.Resolver, op.Operands, 6); ok {
			in.tlm = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.tm = in.tlm
		}
		return nil
	}))
	p.RegisterHandler("T*", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		in.nextLine(ec)
		return nil
	}))
	p.RegisterHandler("Tj", HandlerFunc(in.showText))
	p.RegisterHandler("TJ", HandlerFunc(in.showArray))
	p.RegisterHandler("'", HandlerFunc(func(ec *ExecutionContext, op Operation) error {
		in.nextLine(ec)
		return in.showText(ec, op)
	}))
	p.RegisterHandler(`"`, HandlerFunc(func(ec *ExecutionContext, op Operation) error {
		if len(op.Operands) != 3 {
			return nil
		}
		if v, ok := numbers(in.cfg.Resolver, op.Operands[:2], 2); ok {
			ec.GraphicsState.Text.WordSpacing = v[0]
			ec.GraphicsState.Text.CharSpacing = v[1]
		}
		in.nextLine(ec)
		return in.showText(ec, Operation{Operator: "Tj", Operands: op.Operands[2:]})
	}))
	p.RegisterHandler("Do", HandlerFunc(in.doXObject))
	fill := HandlerFunc(in.setFill)
	for _, op := range []string{"g", "rg", "k", "sc", "scn"} {
		p.RegisterHandler(op, fill)
	}
	p.RegisterHandler("cs", HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		ec.GraphicsState.FillColor = Black
		return nil
	}))
	in.proc = p
	return in
}

// Run interprets content with the given resources and initial CTM and
// returns every glyph shown, including glyphs inside form XObjects.
// Syntax errors end interpretation early; the glyphs found before the
// error are returned together with it.
func (in *Interpreter) Run(ctx context.Context, content []byte, resources *raw.DictObj, ctm coords.Matrix) ([]Glyph, error) {
	in.ctx = ctx
	in.glyphs = nil
	in.show = 0
	in.tm, in.tlm = coords.Identity(), coords.Identity()
	in.forms = make(map[*raw.StreamObj]bool)
	defer func() { in.ctx = nil }()

	ec := &ExecutionContext{GraphicsState: NewGraphicsState(ctm), Resources: resources}
	err := in.run(ec, content)
	return in.glyphs, err
}

func (in *Interpreter) run(ec *ExecutionContext, content []byte) error {
	ops, perr := Parse(content)
	if perr != nil {
		in.cfg.Logger.Warn("content stream truncated",
			observability.Int("operations", len(ops)),
			observability.Error("error", perr))
	}
	if err := in.proc.Process(in.ctx, ops, ec); err != nil {
		return err
	}
	return perr
}

func textParam(set func(*TextState, float64)) HandlerFunc {
	return func(ec *ExecutionContext, op Operation) error {
		if len(op.Operands) == 1 {
			if v, ok := op.Operands[0].(raw.NumberObj); ok {
				set(&ec.GraphicsState.Text, v.Float())
			}
		}
		return nil
	}
}

func numbers(r raw.Resolver, operands []raw.Object, n int) ([]float64, bool) {
	if len(operands) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, o := range operands {
		v, ok := raw.FloatValue(r, o)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (in *Interpreter) concat(ec *ExecutionContext, op Operation) error {
	v, ok := numbers(in.cfg.Resolver, op.Operands, 6)
	if !ok {
		return nil
	}
	m := coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
	ec.GraphicsState.CTM = m.Multiply(ec.GraphicsState.CTM)
	return nil
}

func (in *Interpreter) moveText(_ *ExecutionContext, op Operation) error {
	v, ok := numbers(in.cfg.Resolver, op.Operands, 2)
	if !ok {
		return nil
	}
	in.tlm = coords.Translate(v[0], v[1]).Multiply(in.tlm)
	in.tm = in.tlm
	return nil
}

func (in *Interpreter) nextLine(ec *ExecutionContext) {
	in.tlm = coords.Translate(0, -ec.GraphicsState.Text.Leading).Multiply(in.tlm)
	in.tm = in.tlm
}

func (in *Interpreter) setFill(ec *ExecutionContext, op Operation) error {
	var comps []float64
	for _, o := range op.Operands {
		if v, ok := o.(raw.NumberObj); ok {
			comps = append(comps, v.Float())
		}
	}
	if c, ok := ColorFromComponents(comps); ok {
		ec.GraphicsState.FillColor = c
	}
	return nil
}

func (in *Interpreter) setFont(ec *ExecutionContext, op Operation) error {
	if len(op.Operands) != 2 {
		return nil
	}
	name, _ := op.Operands[0].(raw.NameObj)
	if size, ok := raw.FloatValue(in.cfg.Resolver, op.Operands[1]); ok {
		ec.GraphicsState.Text.FontSize = size
	}
	ec.GraphicsState.Text.Font = in.font(ec.Resources, name.Val)
	return nil
}

func (in *Interpreter) font(resources *raw.DictObj, name string) *FontEntry {
	r := in.cfg.Resolver
	var dict *raw.DictObj
	if res, ok := raw.DictValue(r, lookup(r, resources, "Font")); ok {
		dict, _ = raw.DictValue(r, lookup(r, res, name))
	}
	if dict == nil {
		in.cfg.Logger.Warn("font resource missing", observability.String("font", name))
		return &FontEntry{Name: name, Decoder: fonts.NewDecoder(r, nil, nil, in.cfg.Widths), scale: 1}
	}
	if fe, ok := in.fonts[dict]; ok {
		return fe
	}
	fe := &FontEntry{Decoder: fonts.NewDecoder(r, dict, in.cfg.Load, in.cfg.Widths), scale: 1}
	fe.Name = fe.Decoder.BaseFont
	if fe.Name == "" {
		fe.Name = name
	}
	if fe.Decoder.Subtype == "Type3" {
		if fm, ok := raw.Floats(r, lookup(r, dict, "FontMatrix")); ok && len(fm) == 6 && fm[0] != 0 {
			fe.scale = fm[0] * 1000
		}
	}
	in.fonts[dict] = fe
	return fe
}

func lookup(r raw.Resolver, d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return raw.NullObj{}
	}
	v, ok := raw.Lookup(r, d, key)
	if !ok {
		return raw.NullObj{}
	}
	return v
}

func (in *Interpreter) showText(ec *ExecutionContext, op Operation) error {
	if len(op.Operands) != 1 {
		return nil
	}
	s, ok := raw.StringValue(in.cfg.Resolver, op.Operands[0])
	if !ok {
		return nil
	}
	in.show++
	in.showString(ec, s)
	return nil
}

func (in *Interpreter) showArray(ec *ExecutionContext, op Operation) error {
	if len(op.Operands) != 1 {
		return nil
	}
	arr, ok := raw.ArrayValue(in.cfg.Resolver, op.Operands[0])
	if !ok {
		return nil
	}
	in.show++
	ts := &ec.GraphicsState.Text
	for _, it := range arr.Items {
		switch v := it.(type) {
		case raw.StringObj:
			in.showString(ec, v.Bytes)
		case raw.NumberObj:
			adj := -v.Float() / 1000 * ts.FontSize
			if ts.Font != nil && ts.Font.Decoder.Vertical {
				in.tm = coords.Translate(0, adj).Multiply(in.tm)
			} else {
				in.tm = coords.Translate(adj*ts.Scale/100, 0).Multiply(in.tm)
			}
		}
	}
	return nil
}

func (in *Interpreter) showString(ec *ExecutionContext, s []byte) {
	gs := ec.GraphicsState
	ts := &gs.Text
	if ts.Font == nil {
		ts.Font = in.font(ec.Resources, "")
	}
	fe := ts.Font
	th := ts.Scale / 100
	vertical := fe.Decoder.Vertical
	for _, g := range fe.Decoder.Decode(s) {
		trm := coords.Matrix{ts.FontSize * th, 0, 0, ts.FontSize, 0, ts.Rise}.Multiply(in.tm).Multiply(gs.CTM)
		w0 := g.Width * fe.scale / 1000
		spacing := ts.CharSpacing
		if g.Space {
			spacing += ts.WordSpacing
		}
		var advance coords.Matrix
		var length float64
		m := in.tm.Multiply(gs.CTM)
		if vertical {
			ty := -ts.FontSize + spacing
			advance = coords.Translate(0, ty)
			length = math.Abs(ty) * m.VerticalScale()
		} else {
			tx := (w0*ts.FontSize + spacing) * th
			advance = coords.Translate(tx, 0)
			length = tx * m.HorizontalScale()
		}
		in.glyphs = append(in.glyphs, Glyph{
			Text:     g.Text,
			Font:     fe.Name,
			FontSize: ts.FontSize,
			Size:     math.Abs(ts.FontSize) * m.VerticalScale(),
			Matrix:   trm,
			Origin:   trm.Transform(coords.Point{}),
			Advance:  length,
			Space:    g.Space,
			Vertical: vertical,
			Mode:     ts.RenderMode,
			Color:    gs.FillColor,
			Show:     in.show,
		})
		in.tm = advance.Multiply(in.tm)
	}
}

var errFormDepth = errors.New("form XObjects nested too deeply")

func (in *Interpreter) doXObject(ec *ExecutionContext, op Operation) error {
	if len(op.Operands) != 1 {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	r := in.cfg.Resolver
	xobjects, ok := raw.DictValue(r, lookup(r, ec.Resources, "XObject"))
	if !ok {
		return nil
	}
	form, ok := raw.StreamValue(r, lookup(r, xobjects, name.Val))
	if !ok {
		return nil
	}
	if st, _ := raw.NameValue(r, lookup(r, form.Dict, "Subtype")); st != "Form" {
		return nil
	}
	if in.forms[form] {
		in.cfg.Logger.Warn("form XObject cycle", observability.String("name", name.Val))
		return nil
	}
	if ec.Depth+1 > in.cfg.MaxDepth {
		in.cfg.Logger.Warn("form XObject skipped",
			observability.String("name", name.Val),
			observability.Error("error", errFormDepth))
		return nil
	}
	data := form.Data
	if in.cfg.Load != nil {
		d, err := in.cfg.Load(form)
		if err != nil {
			in.cfg.Logger.Warn("form XObject unreadable",
				observability.String("name", name.Val),
				observability.Error("error", err))
			return nil
		}
		data = d
	}

	gs := *ec.GraphicsState
	gs.stack = nil
	if v, ok := raw.Floats(r, lookup(r, form.Dict, "Matrix")); ok && len(v) == 6 {
		gs.CTM = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.Multiply(gs.CTM)
	}
	res := ec.Resources
	if fr, ok := raw.DictValue(r, lookup(r, form.Dict, "Resources")); ok {
		res = fr
	}
	tm, tlm := in.tm, in.tlm
	in.forms[form] = true
	err := in.run(&ExecutionContext{GraphicsState: &gs, Resources: res, Depth: ec.Depth + 1}, data)
	delete(in.forms, form)
	in.tm, in.tlm = tm, tlm
	if err != nil && in.ctx.Err() != nil {
		return err
	}
	return nil
}
