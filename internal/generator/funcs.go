package generator

import (
	"stubgen/internal/config"
	"stubgen/internal/model"
)

// Class-file access flags that have no dex counterpart at the same value.
const (
	accSuper        = 0x20
	accSynchronized = 0x20
)

// Masks of the flags each class-file structure may carry.
const (
	classFlagsMask  = 0x7611 // public final interface abstract synthetic annotation enum
	innerFlagsMask  = 0x761f // class flags plus private protected static
	fieldFlagsMask  = 0x50df
	methodFlagsMask = 0x1dff
)

// classAccess converts dex class flags to class-file flags.
func classAccess(c *model.Class) uint16 {
	f := c.Access
	if f.IsProtected() {
		f |= model.AccPublic
	}
	out := uint16(f) & classFlagsMask
	if f.IsInterface() {
		out |= uint16(model.AccAbstract)
	} else {
		out |= accSuper
	}
	return out
}

// innerAccess returns the InnerClasses flags of a nested class.
func innerAccess(c *model.Class) uint16 {
	f := c.Access
	if c.Inner != nil && c.Inner.Access != 0 {
		f = c.Inner.Access
	}
	return uint16(f) & innerFlagsMask
}

func fieldAccess(f *model.Field) uint16 {
	return uint16(f.Access) & fieldFlagsMask
}

func methodAccess(m *model.Method) uint16 {
	out := uint16(m.Access) & methodFlagsMask
	if m.Access.Has(model.AccDeclaredSynchronized) {
		out |= accSynchronized
	}
	return out
}

func keepField(cfg *config.Options, f *model.Field) bool {
	if f.Access.IsPrivate() && !cfg.KeepPrivate {
		return false
	}
	if f.Access.IsSynthetic() && !cfg.KeepSynthetic {
		return false
	}
	return true
}

func keepMethod(cfg *config.Options, m *model.Method) bool {
	if m.IsClassInitializer() {
		return false
	}
	if m.Access.IsPrivate() && !cfg.KeepPrivate {
		return false
	}
	if m.Access.IsSynthetic() && !m.Access.Has(model.AccBridge) && !cfg.KeepSynthetic {
		return false
	}
	return true
}

// hasCode reports whether a stub method gets a body.
func hasCode(m *model.Method) bool {
	return !m.Access.IsAbstract() && !m.Access.IsNative()
}

// maxLocals counts the local variable slots of a method's parameters,
// including the receiver of instance methods.
func maxLocals(m *model.Method) int {
	n := 0
	if !m.Access.IsStatic() {
		n++
	}
	for _, p := range m.Params {
		if p == "J" || p == "D" {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// validDescriptor reports whether desc is a well-formed field descriptor.
// With allowVoid, "V" is also accepted (method return types).
func validDescriptor(desc string, allowVoid bool) bool {
	if allowVoid && desc == "V" {
		return true
	}
	n, ok := scanDescriptor(desc)
	return ok && n == len(desc)
}

// scanDescriptor returns the length of the field descriptor at the start of s.
func scanDescriptor(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i > 255 || i >= len(s) {
		return 0, false
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, true
	case 'L':
		for j := i + 1; j < len(s); j++ {
			switch s[j] {
			case ';':
				if j == i+1 {
					return 0, false
				}
				return j + 1, true
			case '.', '[':
				return 0, false
			}
		}
	}
	return 0, false
}

// constantIndex adds the ConstantValue entry for a field constant. ok is
// false when the constant does not fit the field's type.
func constantIndex(p *constPool, desc string, v any) (uint16, bool) {
	switch c := v.(type) {
	case int32:
		switch desc {
		case "I", "S", "C", "B", "Z":
			return p.integer(c), true
		}
	case int64:
		if desc == "J" {
			return p.long(c), true
		}
	case float32:
		if desc == "F" {
			return p.float(c), true
		}
	case float64:
		if desc == "D" {
			return p.double(c), true
		}
	case string:
		if desc == "Ljava/lang/String;" {
			return p.str(c), true
		}
	}
	return 0, false
}
