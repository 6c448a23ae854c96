package blend

import (
	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/sampling"
)

type Kind int

const (
	// Clip samples an animation.
	Clip Kind = iota
	// Override averages its children, each weighted by weight * mask.
	Override
	// Additive applies children 1..n as delta layers on top of child 0.
	Additive
)

func (k Kind) String() string {
	switch k {
	case Clip:
		return "clip"
	case Override:
		return "override"
	case Additive:
		return "additive"
	}
	return "unknown"
}

// Node is one node of a blend tree. Weight, Speed and Playback can be changed
// between evaluations. A node belongs to a single tree.
type Node struct {
	Kind   Kind
	Name   string
	Weight float32
	// Speed scales the time step of the node and of its whole subtree.
	Speed float32
	// Mask is optional; nil gives every joint full weight.
	Mask     *Mask
	Children []*Node

	// Clip only.
	Animation *animation.Animation
	Playback  Playback

	context *sampling.Context
	local   []core.SoaTransform
}

// NewClip returns a looping clip node playing anim at normal speed.
func NewClip(name string, anim *animation.Animation, weight float32) *Node {
	return &Node{
		Kind:      Clip,
		Name:      name,
		Weight:    weight,
		Speed:     1,
		Animation: anim,
		Playback:  Playback{Speed: 1, Loop: true},
	}
}

func NewOverride(name string, weight float32, children ...*Node) *Node {
	return &Node{Kind: Override, Name: name, Weight: weight, Speed: 1, Children: children}
}

// NewAdditive returns an additive node applying layers on top of base.
func NewAdditive(name string, weight float32, base *Node, layers ...*Node) *Node {
	return &Node{Kind: Additive, Name: name, Weight: weight, Speed: 1, Children: append([]*Node{base}, layers...)}
}

// Context returns the sampling context of a clip node once it belongs to a
// tree.
func (n *Node) Context() *sampling.Context { return n.context }
