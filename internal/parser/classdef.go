package parser

import (
	"fmt"
	"strings"

	"stubgen/internal/model"
)

// System annotations carrying signature information.
const (
	annotationSignature  = "Ldalvik/annotation/Signature;"
	annotationThrows     = "Ldalvik/annotation/Throws;"
	annotationInnerClass = "Ldalvik/annotation/InnerClass;"
)

type annotations struct {
	class   map[string]*annotation
	fields  map[uint32]map[string]*annotation
	methods map[uint32]map[string]*annotation
}

// class decodes the i-th class_def.
func (d *dexFile) class(i int) (model.Class, error) {
	c := d.at(uint32(d.classDefsOff + 32*i))
	classIdx := c.u32()
	access := c.u32()
	superIdx := c.u32()
	interfacesOff := c.u32()
	sourceFileIdx := c.u32()
	annotationsOff := c.u32()
	classDataOff := c.u32()
	staticValuesOff := c.u32()
	if c.err != nil {
		return model.Class{}, c.err
	}

	name, err := d.typeName(classIdx)
	if err != nil {
		return model.Class{}, err
	}
	cls := model.Class{Name: name, Access: model.AccessFlags(access)}

	if superIdx != noIndex {
		if cls.Super, err = d.typeName(superIdx); err != nil {
			return cls, fmt.Errorf("superclass: %w", err)
		}
	}
	ifaces, err := d.typeList(interfacesOff)
	if err != nil {
		return cls, fmt.Errorf("interfaces: %w", err)
	}
	for _, desc := range ifaces {
		cls.Interfaces = append(cls.Interfaces, model.InternalName(desc))
	}
	if sourceFileIdx != noIndex {
		if cls.SourceFile, err = d.string(sourceFileIdx); err != nil {
			return cls, fmt.Errorf("source file: %w", err)
		}
	}

	annos, err := d.annotations(annotationsOff)
	if err != nil {
		return cls, fmt.Errorf("annotations: %w", err)
	}
	cls.Signature = signatureOf(annos.class)
	cls.Inner = innerInfoOf(annos.class)

	if classDataOff != 0 {
		if err := d.classData(&cls, classDataOff, annos); err != nil {
			return cls, err
		}
	}
	if staticValuesOff != 0 {
		if err := d.staticValues(&cls, staticValuesOff); err != nil {
			return cls, fmt.Errorf("static values: %w", err)
		}
	}
	return cls, nil
}

func (d *dexFile) annotations(off uint32) (annotations, error) {
	var a annotations
	if off == 0 {
		return a, nil
	}
	c := d.at(off)
	classOff := c.u32()
	fieldsSize := c.u32()
	methodsSize := c.u32()
	c.u32() // annotated parameters
	if c.err != nil {
		return a, c.err
	}
	if (uint64(fieldsSize)+uint64(methodsSize))*8 > uint64(len(d.data)) {
		return a, fmt.Errorf("annotations directory at %#x too large", off)
	}

	type entry struct{ idx, off uint32 }
	fields := make([]entry, 0, fieldsSize)
	for i := uint32(0); i < fieldsSize; i++ {
		fields = append(fields, entry{c.u32(), c.u32()})
	}
	methods := make([]entry, 0, methodsSize)
	for i := uint32(0); i < methodsSize; i++ {
		methods = append(methods, entry{c.u32(), c.u32()})
	}
	if c.err != nil {
		return a, c.err
	}

	var err error
	if a.class, err = d.annotationSet(classOff); err != nil {
		return a, err
	}
	a.fields = make(map[uint32]map[string]*annotation, len(fields))
	for _, e := range fields {
		if a.fields[e.idx], err = d.annotationSet(e.off); err != nil {
			return a, err
		}
	}
	a.methods = make(map[uint32]map[string]*annotation, len(methods))
	for _, e := range methods {
		if a.methods[e.idx], err = d.annotationSet(e.off); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (d *dexFile) classData(cls *model.Class, off uint32, annos annotations) error {
	c := d.at(off)
	staticFields := c.uleb()
	instanceFields := c.uleb()
	directMethods := c.uleb()
	virtualMethods := c.uleb()
	if c.err != nil {
		return fmt.Errorf("class data: %w", c.err)
	}

	for _, n := range []uint32{staticFields, instanceFields} {
		var idx uint32
		for i := uint32(0); i < n; i++ {
			idx += c.uleb()
			access := c.uleb()
			if c.err != nil {
				return fmt.Errorf("class data: %w", c.err)
			}
			f, err := d.field(idx, access, annos.fields[idx])
			if err != nil {
				return err
			}
			cls.Fields = append(cls.Fields, f)
		}
	}
	for _, n := range []uint32{directMethods, virtualMethods} {
		var idx uint32
		for i := uint32(0); i < n; i++ {
			idx += c.uleb()
			access := c.uleb()
			c.uleb() // code_off
			if c.err != nil {
				return fmt.Errorf("class data: %w", c.err)
			}
			m, err := d.method(idx, access, annos.methods[idx])
			if err != nil {
				return err
			}
			cls.Methods = append(cls.Methods, m)
		}
	}
	return nil
}

func (d *dexFile) field(idx, access uint32, annos map[string]*annotation) (model.Field, error) {
	if int(idx) >= len(d.fieldIDs) {
		return model.Field{}, fmt.Errorf("field index %d out of range", idx)
	}
	id := d.fieldIDs[idx]
	name, err := d.string(id.name)
	if err != nil {
		return model.Field{}, fmt.Errorf("field %d: %w", idx, err)
	}
	desc, err := d.typeDescriptor(uint32(id.typ))
	if err != nil {
		return model.Field{}, fmt.Errorf("field %s: %w", name, err)
	}
	return model.Field{
		Name:       name,
		Descriptor: desc,
		Access:     model.AccessFlags(access),
		Signature:  signatureOf(annos),
	}, nil
}

func (d *dexFile) method(idx, access uint32, annos map[string]*annotation) (model.Method, error) {
	if int(idx) >= len(d.methodIDs) {
		return model.Method{}, fmt.Errorf("method index %d out of range", idx)
	}
	id := d.methodIDs[idx]
	name, err := d.string(id.name)
	if err != nil {
		return model.Method{}, fmt.Errorf("method %d: %w", idx, err)
	}
	if int(id.typ) >= len(d.protoIDs) {
		return model.Method{}, fmt.Errorf("method %s: proto index %d out of range", name, id.typ)
	}
	proto := d.protoIDs[id.typ]
	ret, err := d.typeDescriptor(proto.ret)
	if err != nil {
		return model.Method{}, fmt.Errorf("method %s: %w", name, err)
	}
	params, err := d.typeList(proto.params)
	if err != nil {
		return model.Method{}, fmt.Errorf("method %s: %w", name, err)
	}
	return model.Method{
		Name:      name,
		Params:    params,
		Return:    ret,
		Access:    model.AccessFlags(access),
		Throws:    throwsOf(annos),
		Signature: signatureOf(annos),
	}, nil
}

// staticValues assigns the encoded static initial values to the static
// fields they belong to. Only final fields carry them as constants.
func (d *dexFile) staticValues(cls *model.Class, off uint32) error {
	values, err := d.readArray(d.at(off))
	if err != nil {
		return err
	}
	i := 0
	for fi := range cls.Fields {
		f := &cls.Fields[fi]
		if !f.Access.IsStatic() {
			continue
		}
		if i >= len(values) {
			break
		}
		v := values[i]
		i++
		if !f.Access.IsFinal() {
			continue
		}
		f.Constant = constantFor(f.Descriptor, v)
	}
	return nil
}

// constantFor converts an encoded value into the constant representation
// used by the model, or nil when the value is not a compile-time constant
// of the field's type.
func constantFor(desc string, v any) any {
	switch desc {
	case "Z":
		if b, ok := v.(bool); ok {
			if b {
				return int32(1)
			}
			return int32(0)
		}
	case "B", "S", "C", "I":
		if n, ok := v.(int32); ok {
			return n
		}
	case "J":
		if n, ok := v.(int64); ok {
			return n
		}
	case "F":
		if n, ok := v.(float32); ok {
			return n
		}
	case "D":
		if n, ok := v.(float64); ok {
			return n
		}
	case "Ljava/lang/String;":
		if s, ok := v.(string); ok {
			return s
		}
	}
	return nil
}

func signatureOf(set map[string]*annotation) string {
	a, ok := set[annotationSignature]
	if !ok {
		return ""
	}
	parts, _ := a.Elements["value"].([]any)
	var sb strings.Builder
	for _, p := range parts {
		if s, ok := p.(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func throwsOf(set map[string]*annotation) []string {
	a, ok := set[annotationThrows]
	if !ok {
		return nil
	}
	types, _ := a.Elements["value"].([]any)
	var out []string
	for _, t := range types {
		if ref, ok := t.(typeRef); ok {
			out = append(out, model.InternalName(string(ref)))
		}
	}
	return out
}

func innerInfoOf(set map[string]*annotation) *model.InnerInfo {
	a, ok := set[annotationInnerClass]
	if !ok {
		return nil
	}
	info := &model.InnerInfo{}
	if flags, ok := a.Elements["accessFlags"].(int32); ok {
		info.Access = model.AccessFlags(uint32(flags))
	}
	if name, ok := a.Elements["name"].(string); ok {
		info.Name = name
	} else {
		info.Anonymous = true
	}
	return info
}
