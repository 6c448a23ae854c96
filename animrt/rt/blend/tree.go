// Package blend composes sampled animations into one local pose through a
// tree of weighted nodes.
package blend

import (
	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/sampling"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var (
	ErrNilNode       = errors.New("blend: nil node")
	ErrNodeReused    = errors.New("blend: node used more than once")
	ErrNoChildren    = errors.New("blend: blend node without children")
	ErrClipAnimation = errors.New("blend: clip needs an animation and no children")
	ErrTrackCount    = errors.New("blend: animation track count differs from skeleton joint count")
	ErrMaskSkeleton  = errors.New("blend: mask built for another skeleton")
	ErrUnknownKind   = errors.New("blend: unknown node kind")
	ErrOutputSize    = errors.New("blend: output too small")
	ErrUnknownJoint  = errors.New("blend: unknown joint")
)

// zeroWeight is the total weight under which a joint falls back to the
// rest pose. It also bounds the normalization denominator.
const zeroWeight = 1e-6

// Tree evaluates a node hierarchy into a local pose of one skeleton. A tree
// owns the sampling contexts and scratch poses of its nodes and must not be
// evaluated concurrently.
type Tree struct {
	skeleton *skeleton.Skeleton
	root     *Node
	nodes    []*Node
}

// NewTree validates root and allocates the per-node state needed to
// evaluate it against s.
func NewTree(s *skeleton.Skeleton, root *Node) (*Tree, error) {
	t := &Tree{skeleton: s, root: root}
	seen := make(map[*Node]bool)
	if err := t.prepare(root, seen); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) prepare(n *Node, seen map[*Node]bool) error {
	if n == nil {
		return ErrNilNode
	}
	if seen[n] {
		return errors.Wrapf(ErrNodeReused, "node %q", n.Name)
	}
	seen[n] = true

	if n.Mask != nil && n.Mask.Skeleton() != t.skeleton {
		return errors.Wrapf(ErrMaskSkeleton, "node %q", n.Name)
	}

	switch n.Kind {
	case Clip:
		if n.Animation == nil || len(n.Children) > 0 {
			return errors.Wrapf(ErrClipAnimation, "node %q", n.Name)
		}
		if err := t.checkTracks(n.Animation); err != nil {
			return errors.Wrapf(err, "node %q", n.Name)
		}
		n.context = sampling.NewContext(t.skeleton.NumJoints())
	case Override, Additive:
		if len(n.Children) == 0 {
			return errors.Wrapf(ErrNoChildren, "%s node %q", n.Kind, n.Name)
		}
		for _, c := range n.Children {
			if err := t.prepare(c, seen); err != nil {
				return err
			}
		}
	default:
		return errors.Wrapf(ErrUnknownKind, "node %q kind %d", n.Name, n.Kind)
	}

	n.local = make([]core.SoaTransform, t.skeleton.NumSoaJoints())
	copy(n.local, t.skeleton.RestPoses())
	t.nodes = append(t.nodes, n)
	return nil
}

func (t *Tree) checkTracks(anim *animation.Animation) error {
	if anim.NumTracks() != t.skeleton.NumJoints() {
		return errors.Wrapf(ErrTrackCount, "%q has %d tracks, skeleton has %d joints",
			anim.Name(), anim.NumTracks(), t.skeleton.NumJoints())
	}
	return nil
}

func (t *Tree) Skeleton() *skeleton.Skeleton { return t.skeleton }

func (t *Tree) Root() *Node { return t.root }

// Find returns the first node named name, or nil.
func (t *Tree) Find(name string) *Node {
	for _, n := range t.nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Evaluate advances every clip by dt seconds and writes the blended local
// pose to out.
func (t *Tree) Evaluate(dt float32, out []core.SoaTransform) error {
	if len(out) < t.skeleton.NumSoaJoints() {
		return errors.Wrapf(ErrOutputSize, "%d entries for %d joints", len(out), t.skeleton.NumJoints())
	}
	t.evaluate(t.root, dt)
	copy(out, t.root.local)
	return nil
}

func (t *Tree) evaluate(n *Node, dt float32) {
	dt *= n.Speed
	switch n.Kind {
	case Clip:
		job := sampling.Job{
			Animation: n.Animation,
			Context:   n.context,
			Ratio:     n.Playback.Advance(dt, n.Animation.Duration()),
			Output:    n.local,
		}
		job.Run()
	case Override:
		for _, c := range n.Children {
			t.evaluate(c, dt)
		}
		t.override(n)
	case Additive:
		for _, c := range n.Children {
			t.evaluate(c, dt)
		}
		t.additive(n)
	}
}

// jointWeight is the effective weight of n on joint.
func (n *Node) jointWeight(joint int) float32 {
	w := max(n.Weight, 0)
	if n.Mask != nil {
		w *= n.Mask.Weight(joint)
	}
	return w
}

func (t *Tree) override(n *Node) {
	for j := 0; j < t.skeleton.NumJoints(); j++ {
		var (
			total    float32
			position mgl32.Vec3
			scale    mgl32.Vec3
			rotation mgl32.Quat
			first    mgl32.Quat
			found    bool
		)
		for _, c := range n.Children {
			w := c.jointWeight(j)
			if w <= 0 {
				continue
			}
			tr := core.JointTransform(c.local, j)
			if !found {
				first, found = tr.Rotation, true
			} else if first.Dot(tr.Rotation) < 0 {
				tr.Rotation = tr.Rotation.Scale(-1)
			}
			total += w
			position = position.Add(tr.Position.Mul(w))
			scale = scale.Add(tr.Scale.Mul(w))
			rotation = rotation.Add(tr.Rotation.Scale(w))
		}
		if total <= zeroWeight {
			core.SetJointTransform(n.local, j, t.skeleton.RestPose(j))
			continue
		}
		inv := 1 / max(total, zeroWeight)
		core.SetJointTransform(n.local, j, core.Transform{
			Position: position.Mul(inv),
			Rotation: rotation.Normalize(),
			Scale:    scale.Mul(inv),
		})
	}
}

func (t *Tree) additive(n *Node) {
	base := n.Children[0]
	copy(n.local, base.local)
	for _, layer := range n.Children[1:] {
		for j := 0; j < t.skeleton.NumJoints(); j++ {
			w := min(layer.jointWeight(j), 1)
			if w <= 0 {
				continue
			}
			delta := core.JointTransform(layer.local, j)
			tr := core.JointTransform(n.local, j)
			tr.Position = tr.Position.Add(delta.Position.Mul(w))
			tr.Rotation = tr.Rotation.Mul(core.WeightQuat(delta.Rotation, w)).Normalize()
			one := mgl32.Vec3{1, 1, 1}
			s := one.Add(delta.Scale.Sub(one).Mul(w))
			tr.Scale = mgl32.Vec3{tr.Scale[0] * s[0], tr.Scale[1] * s[1], tr.Scale[2] * s[2]}
			core.SetJointTransform(n.local, j, tr)
		}
	}
}

// EffectiveWeights returns the weight each child of n gets on joint. For
// override nodes the weights are normalized: they sum to 1, or are all 0
// when no child contributes. Additive nodes report 1 for the base and the
// raw weight of each layer. Clips have no children and return nil.
func (t *Tree) EffectiveWeights(n *Node, joint int) []float32 {
	if n.Kind == Clip || joint < 0 || joint >= t.skeleton.NumJoints() {
		return nil
	}
	out := make([]float32, len(n.Children))
	if n.Kind == Additive {
		out[0] = 1
		for i, c := range n.Children[1:] {
			out[i+1] = min(c.jointWeight(joint), 1)
		}
		return out
	}
	var total float32
	for i, c := range n.Children {
		out[i] = c.jointWeight(joint)
		total += out[i]
	}
	if total <= zeroWeight {
		clear(out)
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// ReplaceAnimation rebinds every clip playing old to anim and invalidates
// their sampling contexts. It returns the number of clips changed.
func (t *Tree) ReplaceAnimation(old, anim *animation.Animation) (int, error) {
	if anim == nil {
		return 0, errors.Wrapf(ErrClipAnimation, "nil replacement")
	}
	if err := t.checkTracks(anim); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range t.nodes {
		if n.Kind == Clip && n.Animation == old {
			n.Animation = anim
			n.context.Invalidate()
			count++
		}
	}
	return count, nil
}
