// Package model defines the intermediate representation for parsed class definitions.
package model

import "strings"

// AccessFlags is a class, field or method access flag set. Values follow the
// dex encoding, which is a superset of the class-file encoding.
type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccVolatile             AccessFlags = 0x40 // fields
	AccBridge               AccessFlags = 0x40 // methods
	AccTransient            AccessFlags = 0x80 // fields
	AccVarargs              AccessFlags = 0x80 // methods
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

func (f AccessFlags) Has(flag AccessFlags) bool { return f&flag != 0 }

func (f AccessFlags) IsPublic() bool     { return f.Has(AccPublic) }
func (f AccessFlags) IsPrivate() bool    { return f.Has(AccPrivate) }
func (f AccessFlags) IsProtected() bool  { return f.Has(AccProtected) }
func (f AccessFlags) IsStatic() bool     { return f.Has(AccStatic) }
func (f AccessFlags) IsFinal() bool      { return f.Has(AccFinal) }
func (f AccessFlags) IsInterface() bool  { return f.Has(AccInterface) }
func (f AccessFlags) IsAbstract() bool   { return f.Has(AccAbstract) }
func (f AccessFlags) IsNative() bool     { return f.Has(AccNative) }
func (f AccessFlags) IsSynthetic() bool  { return f.Has(AccSynthetic) }
func (f AccessFlags) IsAnnotation() bool { return f.Has(AccAnnotation) }

// Class represents one compiled class definition.
type Class struct {
	Name       string      // Internal name (e.g., "com/example/Outer$Inner")
	Access     AccessFlags // Access flags as declared by the container
	Super      string      // Superclass internal name (empty for java/lang/Object)
	Interfaces []string    // Implemented interface internal names, in order
	SourceFile string      // Source file name, if recorded
	Signature  string      // Generic signature, if any
	Inner      *InnerInfo  // Inner-class declaration, if the container carried one
	Fields     []Field     // Fields in declaration order
	Methods    []Method    // Methods in declaration order
}

// InnerInfo is the inner-class declaration recorded by the container. It only
// supplies flags and anonymity; the nesting relation itself is inferred from
// the class universe.
type InnerInfo struct {
	Access    AccessFlags // Flags of the class as a member of its outer class
	Name      string      // Simple name (empty for anonymous classes)
	Anonymous bool
}

// Field represents a field declaration.
type Field struct {
	Name       string      // Field name
	Descriptor string      // Type descriptor (e.g., "Ljava/lang/String;")
	Access     AccessFlags // Access flags
	Signature  string      // Generic signature, if any
	Constant   any         // Compile-time constant: int32, int64, float32, float64 or string
}

// Method represents a method declaration.
type Method struct {
	Name      string      // Method name ("<init>" for constructors)
	Params    []string    // Parameter type descriptors
	Return    string      // Return type descriptor
	Access    AccessFlags // Access flags
	Throws    []string    // Declared thrown exception internal names
	Signature string      // Generic signature, if any
}

// Descriptor returns the method descriptor, e.g. "(ILjava/lang/String;)V".
func (m *Method) Descriptor() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	sb.WriteString(m.Return)
	return sb.String()
}

// IsConstructor reports whether the method is an instance constructor.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// IsClassInitializer reports whether the method is a static initializer.
func (m *Method) IsClassInitializer() bool { return m.Name == "<clinit>" }
