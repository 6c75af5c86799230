package model

import "github.com/chazu/tessera/diag"

// Op names an analyzed body operation.
type Op string

const (
	// Constants
	OpInt     Op = "int"
	OpDouble  Op = "double"
	OpString  Op = "string"
	OpBool    Op = "bool"
	OpNothing Op = "nothing"
	OpSelf    Op = "self"

	// Variables and fields
	OpLoad     Op = "load"
	OpStore    Op = "store"
	OpDeclare  Op = "declare"
	OpGetField Op = "get-field"
	OpSetField Op = "set-field"

	// Calls
	OpCallMethod     Op = "call-method"
	OpCallTypeMethod Op = "call-type-method"
	OpNew            Op = "new"
	OpSuperInit      Op = "super-init"
	OpCallFunction   Op = "call-function"
	OpCallProtocol   Op = "call-protocol"

	// Boxing
	OpBox   Op = "box"
	OpUnbox Op = "unbox"

	// Control flow
	OpIf      Op = "if"
	OpWhile   Op = "while"
	OpReturn  Op = "return"
	OpClosure Op = "closure"
)

// Node is one analyzed expression or statement. Which fields are meaningful
// depends on Op:
//
//   - constants use Int, Double, Str or Bool
//   - load, store and declare address Var, an index into Callable.Vars
//   - field access names Field on the type of self
//   - calls name Callee on Owner (a class, value type or protocol); Receiver
//     is the target of method and protocol calls
//   - box and unbox convert Value to Type
//   - if evaluates Cond then Then, or Else when present; while repeats Body
//     while Cond holds; closure carries Params (variable indices) and Body
//
// Type is the static type of the value the node produces.
type Node struct {
	Op       Op            `yaml:"op" cbor:"op"`
	Int      int64         `yaml:"int,omitempty" cbor:"int,omitempty"`
	Double   float64       `yaml:"double,omitempty" cbor:"double,omitempty"`
	Str      string        `yaml:"str,omitempty" cbor:"str,omitempty"`
	Bool     bool          `yaml:"bool,omitempty" cbor:"bool,omitempty"`
	Var      int           `yaml:"var,omitempty" cbor:"var,omitempty"`
	Field    string        `yaml:"field,omitempty" cbor:"field,omitempty"`
	Callee   string        `yaml:"callee,omitempty" cbor:"callee,omitempty"`
	Owner    string        `yaml:"owner,omitempty" cbor:"owner,omitempty"`
	Type     TypeRef       `yaml:"type,omitempty" cbor:"type,omitempty"`
	Receiver *Node         `yaml:"receiver,omitempty" cbor:"receiver,omitempty"`
	Value    *Node         `yaml:"value,omitempty" cbor:"value,omitempty"`
	Cond     *Node         `yaml:"cond,omitempty" cbor:"cond,omitempty"`
	Args     []Node        `yaml:"args,omitempty" cbor:"args,omitempty"`
	Then     []Node        `yaml:"then,omitempty" cbor:"then,omitempty"`
	Else     []Node        `yaml:"else,omitempty" cbor:"else,omitempty"`
	Body     []Node        `yaml:"body,omitempty" cbor:"body,omitempty"`
	Params   []int         `yaml:"params,omitempty" cbor:"params,omitempty"`
	Pos      diag.Position `yaml:"pos,omitempty" cbor:"pos,omitempty"`
}

// Walk calls fn for n and every node nested in it, depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, child := range []*Node{n.Receiver, n.Value, n.Cond} {
		if child != nil {
			child.Walk(fn)
		}
	}
	for _, list := range [][]Node{n.Args, n.Then, n.Else, n.Body} {
		for i := range list {
			list[i].Walk(fn)
		}
	}
}

// WalkBody calls fn for every node of a body.
func WalkBody(body []Node, fn func(*Node)) {
	for i := range body {
		body[i].Walk(fn)
	}
}
