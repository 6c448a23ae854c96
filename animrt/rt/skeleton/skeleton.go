// Package skeleton defines the immutable joint hierarchy shared by every
// animation consumer.
package skeleton

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"

	"github.com/pkg/errors"
)

const (
	// NoParent is the parent index of root joints.
	NoParent = -1
	// MaxJoints bounds the number of joints of a skeleton, and therefore the
	// number of tracks of an animation.
	MaxJoints = 1024
)

var (
	ErrNoJoints      = errors.New("skeleton: no joints")
	ErrTooManyJoints = errors.New("skeleton: too many joints")
	ErrParentOrder   = errors.New("skeleton: parent index must be lower than joint index")
	ErrJointName     = errors.New("skeleton: joint names must be unique and non-empty")
)

// Joint describes one joint handed to New. Parent refers to the index of
// another Joint in the same slice, or NoParent.
type Joint struct {
	Name   string
	Parent int
	Rest   core.Transform
}

// Skeleton is an ordered joint hierarchy where every parent comes before
// any of its descendants. It is never mutated after New.
type Skeleton struct {
	names   []string
	parents []int16
	rest    []core.SoaTransform
	byName  map[string]int
}

func New(joints []Joint) (*Skeleton, error) {
	n := len(joints)
	switch {
	case n == 0:
		return nil, ErrNoJoints
	case n > MaxJoints:
		return nil, errors.Wrapf(ErrTooManyJoints, "%d > %d", n, MaxJoints)
	}

	s := &Skeleton{
		names:   make([]string, n),
		parents: make([]int16, n),
		rest:    make([]core.SoaTransform, core.NumSoa(n)),
		byName:  make(map[string]int, n),
	}
	core.FillIdentity(s.rest)

	for i, j := range joints {
		if j.Parent < NoParent || j.Parent >= i {
			return nil, errors.Wrapf(ErrParentOrder, "joint %d (%q) has parent %d", i, j.Name, j.Parent)
		}
		if _, dup := s.byName[j.Name]; dup || j.Name == "" {
			return nil, errors.Wrapf(ErrJointName, "joint %d (%q)", i, j.Name)
		}
		s.names[i] = j.Name
		s.parents[i] = int16(j.Parent)
		s.byName[j.Name] = i
		core.SetJointTransform(s.rest, i, j.Rest)
	}
	return s, nil
}

func (s *Skeleton) NumJoints() int { return len(s.names) }

// NumSoaJoints is the number of SoA entries covering all joints.
func (s *Skeleton) NumSoaJoints() int { return len(s.rest) }

// Parents returns the parent index of every joint. Callers must not modify it.
func (s *Skeleton) Parents() []int16 { return s.parents }

func (s *Skeleton) Parent(joint int) int { return int(s.parents[joint]) }

// Names returns the joint names. Callers must not modify it.
func (s *Skeleton) Names() []string { return s.names }

// RestPoses returns the SoA rest pose. Callers must not modify it.
func (s *Skeleton) RestPoses() []core.SoaTransform { return s.rest }

func (s *Skeleton) RestPose(joint int) core.Transform {
	return core.JointTransform(s.rest, joint)
}

// FindJoint returns the index of the joint named name, or -1.
func (s *Skeleton) FindJoint(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

// IsAncestor reports whether ancestor is a strict ancestor of joint.
func (s *Skeleton) IsAncestor(ancestor, joint int) bool {
	if ancestor < 0 || joint < 0 || joint >= len(s.parents) {
		return false
	}
	for p := int(s.parents[joint]); p >= ancestor; p = int(s.parents[p]) {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (s *Skeleton) IsLeaf(joint int) bool {
	for i := joint + 1; i < len(s.parents); i++ {
		if int(s.parents[i]) == joint {
			return false
		}
	}
	return true
}

// SubtreeEnd returns the exclusive end of the contiguous index range
// starting at joint that only contains joint's descendants. With depth-first
// ordering this is the whole subtree.
func (s *Skeleton) SubtreeEnd(joint int) int {
	end := joint + 1
	for end < len(s.parents) && s.IsAncestor(joint, end) {
		end++
	}
	return end
}

// IterateSubtree calls fn for from and each of its descendants, parents
// before children. from == NoParent walks the whole skeleton.
func (s *Skeleton) IterateSubtree(from int, fn func(joint, parent int)) {
	for i := range s.parents {
		if from == NoParent || i == from || s.IsAncestor(from, i) {
			fn(i, int(s.parents[i]))
		}
	}
}
