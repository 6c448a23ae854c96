package blend

import (
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Mask scales the influence of a blend node per joint. Weights are clamped
// to [0,1].
type Mask struct {
	skeleton *skeleton.Skeleton
	weights  []float32
}

// NewMask returns a mask giving every joint of s the weight def.
func NewMask(s *skeleton.Skeleton, def float32) *Mask {
	m := &Mask{skeleton: s, weights: make([]float32, s.NumJoints())}
	def = mgl32.Clamp(def, 0, 1)
	for i := range m.weights {
		m.weights[i] = def
	}
	return m
}

func (m *Mask) SetJoint(joint int, weight float32) error {
	if joint < 0 || joint >= len(m.weights) {
		return errors.Wrapf(ErrUnknownJoint, "joint index %d", joint)
	}
	m.weights[joint] = mgl32.Clamp(weight, 0, 1)
	return nil
}

// SetByName sets the weight of the named joint, and of all its descendants
// when includeChildren is set.
func (m *Mask) SetByName(name string, weight float32, includeChildren bool) error {
	joint := m.skeleton.FindJoint(name)
	if joint < 0 {
		return errors.Wrapf(ErrUnknownJoint, "%q", name)
	}
	if !includeChildren {
		return m.SetJoint(joint, weight)
	}
	weight = mgl32.Clamp(weight, 0, 1)
	m.skeleton.IterateSubtree(joint, func(j, _ int) {
		m.weights[j] = weight
	})
	return nil
}

func (m *Mask) Weight(joint int) float32 { return m.weights[joint] }

// Complement returns a new mask where each weight is 1 minus m's weight.
// A mask and its complement partition every joint's influence.
func (m *Mask) Complement() *Mask {
	c := &Mask{skeleton: m.skeleton, weights: make([]float32, len(m.weights))}
	for i, w := range m.weights {
		c.weights[i] = 1 - w
	}
	return c
}

func (m *Mask) Skeleton() *skeleton.Skeleton { return m.skeleton }
