// Package pose converts local joint transforms to model space.
package pose

import (
	"github.com/gekko3d/skelanim/animrt/rt/core"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
)

// LocalToModelJob concatenates local transforms down the hierarchy:
// Output[j] = Output[parent(j)] * Input[j], with Root standing in for the
// parent of root joints.
//
// Joints in [From, To) are processed in a single forward pass. To <= 0
// means up to the last joint. Parents outside of the range must already
// hold valid model matrices in Output. With SubtreeOnly only From and its
// descendants are updated.
type LocalToModelJob struct {
	Skeleton *skeleton.Skeleton
	// Root is the model matrix of root joints' parent. Nil means identity.
	Root        *mgl32.Mat4
	Input       []core.SoaTransform
	Output      []mgl32.Mat4
	From        int
	To          int
	SubtreeOnly bool
}

func (j *LocalToModelJob) Validate() bool {
	if j.Skeleton == nil {
		return false
	}
	n := j.Skeleton.NumJoints()
	return len(j.Input) >= j.Skeleton.NumSoaJoints() &&
		len(j.Output) >= n &&
		j.From >= 0 && j.From < n &&
		j.To <= n
}

func (j *LocalToModelJob) Run() bool {
	if !j.Validate() {
		return false
	}

	root := mgl32.Ident4()
	if j.Root != nil {
		root = *j.Root
	}
	to := j.To
	if to <= 0 {
		to = j.Skeleton.NumJoints()
	}
	parents := j.Skeleton.Parents()

	// One bit per joint of the subtree being updated.
	var inside [skeleton.MaxJoints / 64]uint64
	for i := j.From; i < to; i++ {
		parent := int(parents[i])
		if j.SubtreeOnly && i != j.From {
			if parent < j.From || inside[parent/64]&(1<<(parent%64)) == 0 {
				continue
			}
		}
		inside[i/64] |= 1 << (i % 64)

		local := core.JointMatrix(j.Input, i)
		if parent == skeleton.NoParent {
			j.Output[i] = root.Mul4(local)
		} else {
			j.Output[i] = j.Output[parent].Mul4(local)
		}
	}
	return true
}
