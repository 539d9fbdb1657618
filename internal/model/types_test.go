package model_test

import (
	"testing"

	"stubgen/internal/model"
)

func TestMethodDescriptor(t *testing.T) {
	tests := []struct {
		name   string
		method model.Method
		want   string
	}{
		{"no params", model.Method{Return: "V"}, "()V"},
		{"mixed", model.Method{Params: []string{"I", "Ljava/lang/String;", "[J"}, Return: "Z"}, "(ILjava/lang/String;[J)Z"},
		{"object return", model.Method{Params: []string{"D"}, Return: "Ljava/lang/Object;"}, "(D)Ljava/lang/Object;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.method.Descriptor(); got != tt.want {
				t.Errorf("Descriptor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	if got := model.InternalName("Lcom/example/Outer$Inner;"); got != "com/example/Outer$Inner" {
		t.Errorf("InternalName = %q", got)
	}
	if got := model.InternalName("[I"); got != "[I" {
		t.Errorf("InternalName(array) = %q", got)
	}
	if got := model.BinaryName("com/example/Outer$Inner"); got != "com.example.Outer$Inner" {
		t.Errorf("BinaryName = %q", got)
	}
	if got := model.SourceName("com/example/Outer$Inner"); got != "com.example.Outer.Inner" {
		t.Errorf("SourceName = %q", got)
	}
	if got := model.PackageOf("com/example/Outer"); got != "com/example" {
		t.Errorf("PackageOf = %q", got)
	}
	if got := model.PackageOf("Outer"); got != "" {
		t.Errorf("PackageOf(default package) = %q", got)
	}
	if got := model.EntryName("com/example/Outer"); got != "com/example/Outer.class" {
		t.Errorf("EntryName = %q", got)
	}
}

func TestAccessFlags(t *testing.T) {
	f := model.AccPublic | model.AccStatic | model.AccFinal
	if !f.IsPublic() || !f.IsStatic() || !f.IsFinal() {
		t.Errorf("expected public static final, got %#x", uint32(f))
	}
	if f.IsPrivate() || f.IsInterface() || f.IsAbstract() {
		t.Errorf("unexpected flags set in %#x", uint32(f))
	}
}
