// Package generator emits JVM class-file stubs for parsed class definitions.
//
// A stub keeps the API surface of a class (modifiers, supertypes, members,
// signatures, thrown exceptions, constants and nesting) and replaces every
// method body with a throw of the configured stub exception.
package generator

import (
	"fmt"
	"log/slog"

	"stubgen/internal/config"
	"stubgen/internal/index"
	"stubgen/internal/model"
)

const classMagic = 0xcafebabe

// Artifact is one generated class file.
type Artifact struct {
	Name string // Archive entry path, e.g. "com/example/Outer$Inner.class"
	Data []byte
}

// ClassError reports a class that could not be emitted.
type ClassError struct {
	Class string
	Err   error
}

func (e *ClassError) Error() string {
	return fmt.Sprintf("class %s: %v", model.BinaryName(e.Class), e.Err)
}

func (e *ClassError) Unwrap() error { return e.Err }

// Generator emits stubs. Every class of a run must be passed to Expect before
// the first call to Emit, because nesting is resolved against the whole set.
type Generator struct {
	config  *config.Config
	logger  *slog.Logger
	builder *index.Builder
	index   *index.Index
}

// New creates a new Generator. A nil logger discards.
func New(cfg *config.Config, logger *slog.Logger) *Generator {
	if cfg == nil {
		cfg = config.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{
		config:  cfg,
		logger:  logger,
		builder: index.NewBuilder(),
	}
}

// Expect registers a class that will be emitted in this run.
func (g *Generator) Expect(c model.Class) error {
	if err := g.builder.Register(c); err != nil {
		return fmt.Errorf("expecting %s: %w", c.Name, err)
	}
	return nil
}

// Index freezes the class set and returns the resolved index.
func (g *Generator) Index() *index.Index {
	if g.index == nil {
		g.index = g.builder.Build()
		g.logger.Debug("class index built", "classes", g.builder.Len())
	}
	return g.index
}

// Emit generates the stub class file for c.
func (g *Generator) Emit(c model.Class) (Artifact, error) {
	if err := validate(&c); err != nil {
		return Artifact{}, &ClassError{Class: c.Name, Err: err}
	}
	e := &emitter{
		opts:  &g.config.Options,
		index: g.Index(),
		pool:  newConstPool(),
		body:  newWriter(),
	}
	e.class(&c)

	out := newWriter()
	out.u4(classMagic)
	out.u2(0) // minor
	out.u2(uint16(g.config.Options.ClassVersion))
	out.u2(e.pool.count())
	out.bytes(e.pool.buf.Bytes())
	out.bytes(e.body.contents())

	if n, ok := e.index.Nesting(c.Name); ok {
		g.logger.Debug("emitted nested class", "class", c.Name, "outer", n.Outer, "kind", n.Kind)
	}
	return Artifact{Name: model.EntryName(c.Name), Data: out.contents()}, nil
}

func validate(c *model.Class) error {
	if c.Name == "" || c.Name[0] == '[' || !validDescriptor(model.Descriptor(c.Name), false) {
		return fmt.Errorf("malformed class name %q", c.Name)
	}
	for _, f := range c.Fields {
		if !validDescriptor(f.Descriptor, false) {
			return fmt.Errorf("field %s: malformed descriptor %q", f.Name, f.Descriptor)
		}
	}
	for _, m := range c.Methods {
		for _, p := range m.Params {
			if !validDescriptor(p, false) {
				return fmt.Errorf("method %s: malformed parameter descriptor %q", m.Name, p)
			}
		}
		if !validDescriptor(m.Return, true) {
			return fmt.Errorf("method %s: malformed return descriptor %q", m.Name, m.Return)
		}
	}
	return nil
}

// emitter writes the body of one class file, everything after the constant
// pool, while collecting the pool.
type emitter struct {
	opts  *config.Options
	index *index.Index
	pool  *constPool
	body  *writer
}

func (e *emitter) class(c *model.Class) {
	w, p := e.body, e.pool
	w.u2(classAccess(c))
	w.u2(p.class(c.Name))
	if c.Super != "" {
		w.u2(p.class(c.Super))
	} else {
		w.u2(0)
	}
	w.u2(uint16(len(c.Interfaces)))
	for _, iface := range c.Interfaces {
		w.u2(p.class(iface))
	}

	var fields []*model.Field
	for i := range c.Fields {
		if keepField(e.opts, &c.Fields[i]) {
			fields = append(fields, &c.Fields[i])
		}
	}
	w.u2(uint16(len(fields)))
	for _, f := range fields {
		e.field(f)
	}

	var methods []*model.Method
	for i := range c.Methods {
		if keepMethod(e.opts, &c.Methods[i]) {
			methods = append(methods, &c.Methods[i])
		}
	}
	w.u2(uint16(len(methods)))
	for _, m := range methods {
		e.method(m)
	}

	// InnerClasses is collected last, once every member has added its
	// class references to the pool.
	attrs := newWriter()
	count := 0
	if c.SourceFile != "" {
		attrs.attribute(p.utf8("SourceFile"), func(b *writer) { b.u2(p.utf8(c.SourceFile)) })
		count++
	}
	if c.Signature != "" {
		attrs.attribute(p.utf8("Signature"), func(b *writer) { b.u2(p.utf8(c.Signature)) })
		count++
	}
	if entries := e.innerClasses(c.Name); len(entries) > 0 {
		name := p.utf8("InnerClasses")
		rows := make([][4]uint16, 0, len(entries))
		for _, n := range entries {
			rows = append(rows, e.innerRow(n))
		}
		attrs.attribute(name, func(b *writer) {
			b.u2(uint16(len(rows)))
			for _, r := range rows {
				b.u2(r[0])
				b.u2(r[1])
				b.u2(r[2])
				b.u2(r[3])
			}
		})
		count++
	}
	w.u2(uint16(count))
	w.bytes(attrs.contents())
}

func (e *emitter) field(f *model.Field) {
	w, p := e.body, e.pool
	w.u2(fieldAccess(f))
	w.u2(p.utf8(f.Name))
	w.u2(p.utf8(f.Descriptor))

	attrs := newWriter()
	count := 0
	if f.Constant != nil && f.Access.IsStatic() && f.Access.IsFinal() {
		if idx, ok := constantIndex(p, f.Descriptor, f.Constant); ok {
			attrs.attribute(p.utf8("ConstantValue"), func(b *writer) { b.u2(idx) })
			count++
		}
	}
	if f.Signature != "" {
		attrs.attribute(p.utf8("Signature"), func(b *writer) { b.u2(p.utf8(f.Signature)) })
		count++
	}
	w.u2(uint16(count))
	w.bytes(attrs.contents())
}

func (e *emitter) method(m *model.Method) {
	w, p := e.body, e.pool
	w.u2(methodAccess(m))
	w.u2(p.utf8(m.Name))
	w.u2(p.utf8(m.Descriptor()))

	attrs := newWriter()
	count := 0
	if hasCode(m) {
		e.code(attrs, m)
		count++
	}
	if len(m.Throws) > 0 {
		name := p.utf8("Exceptions")
		idx := make([]uint16, len(m.Throws))
		for i, t := range m.Throws {
			idx[i] = p.class(t)
		}
		attrs.attribute(name, func(b *writer) {
			b.u2(uint16(len(idx)))
			for _, i := range idx {
				b.u2(i)
			}
		})
		count++
	}
	if m.Signature != "" {
		attrs.attribute(p.utf8("Signature"), func(b *writer) { b.u2(p.utf8(m.Signature)) })
		count++
	}
	w.u2(uint16(count))
	w.bytes(attrs.contents())
}

// JVM opcodes used by stub bodies.
const (
	opNew           = 0xbb
	opDup           = 0x59
	opLdcW          = 0x13
	opInvokespecial = 0xb7
	opAthrow        = 0xbf
)

// code writes the stub body: throw new E(msg).
func (e *emitter) code(attrs *writer, m *model.Method) {
	p := e.pool
	name := p.utf8("Code")
	exc := p.class(e.opts.StubException)
	msg := p.str(e.opts.StubMessage)
	ctor := p.methodref(e.opts.StubException, "<init>", "(Ljava/lang/String;)V")

	attrs.attribute(name, func(b *writer) {
		b.u2(3) // max_stack
		b.u2(uint16(maxLocals(m)))
		b.u4(11)
		b.u1(opNew)
		b.u2(exc)
		b.u1(opDup)
		b.u1(opLdcW)
		b.u2(msg)
		b.u1(opInvokespecial)
		b.u2(ctor)
		b.u1(opAthrow)
		b.u2(0) // exception table
		b.u2(0) // attributes
	})
}

// innerClasses lists the nesting relations recorded on a class: its own
// ancestor chain, its direct members, and every nested class referenced from
// the constant pool. Enclosing classes always precede the classes they
// enclose.
func (e *emitter) innerClasses(name string) []index.Nesting {
	var out []index.Nesting
	seen := make(map[string]bool)
	addChain := func(n string) {
		for _, link := range e.index.Chain(n) {
			if !seen[link.Name] {
				seen[link.Name] = true
				out = append(out, link)
			}
		}
	}
	addChain(name)
	for _, m := range e.index.Members(name) {
		addChain(m)
	}
	for _, ref := range append([]string(nil), e.pool.classes...) {
		addChain(ref)
	}
	return out
}

// innerRow encodes one InnerClasses entry.
func (e *emitter) innerRow(n index.Nesting) [4]uint16 {
	p := e.pool
	row := [4]uint16{p.class(n.Name), 0, 0, 0}
	c, _ := e.index.Class(n.Name)
	kind := n.Kind
	if c != nil && c.Inner != nil && c.Inner.Anonymous {
		kind = index.KindAnonymous
	}
	switch kind {
	case index.KindMember:
		row[1] = p.class(n.Outer)
		row[2] = p.utf8(n.SimpleName)
	case index.KindLocal:
		row[2] = p.utf8(n.DeclaredName())
	}
	if c != nil {
		row[3] = innerAccess(c)
	}
	return row
}
