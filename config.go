package skelanim

import (
	"io"
	"os"

	"github.com/gekko3d/skelanim/animrt/rt/blend"
	"github.com/gekko3d/skelanim/animrt/rt/ik"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigKind   = errors.New("skelanim: unknown config kind")
	ErrConfigVector = errors.New("skelanim: vectors must have 3 components")
	ErrConfigJoint  = errors.New("skelanim: unknown joint")
)

// Config describes the blend tree and IK solvers of an animator by asset
// and joint names.
type Config struct {
	Name    string         `yaml:"name"`
	Tree    NodeConfig     `yaml:"tree"`
	Solvers []SolverConfig `yaml:"solvers"`
}

type NodeConfig struct {
	Name string `yaml:"name"`
	// Kind is clip, override or additive. The first child of an additive
	// node is its base.
	Kind     string       `yaml:"kind"`
	Clip     string       `yaml:"clip"`
	Weight   *float32     `yaml:"weight"`
	Speed    *float32     `yaml:"speed"`
	Loop     *bool        `yaml:"loop"`
	Mask     *MaskConfig  `yaml:"mask"`
	Children []NodeConfig `yaml:"children"`
}

type MaskConfig struct {
	Default float32           `yaml:"default"`
	Joints  []MaskJointConfig `yaml:"joints"`
}

type MaskJointConfig struct {
	Name     string  `yaml:"name"`
	Weight   float32 `yaml:"weight"`
	Children bool    `yaml:"children"`
}

// SolverConfig holds the settings of every solver kind; only the fields of
// Kind (two_bone, aim_chain or floor) are read.
type SolverConfig struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Weight *float32 `yaml:"weight"`

	Start   string    `yaml:"start"`
	Mid     string    `yaml:"mid"`
	End     string    `yaml:"end"`
	Target  []float32 `yaml:"target"`
	Pole    []float32 `yaml:"pole"`
	MidAxis []float32 `yaml:"mid_axis"`
	Twist   float32   `yaml:"twist"`
	Soften  *float32  `yaml:"soften"`

	Joints      []string  `yaml:"joints"`
	Forward     []float32 `yaml:"forward"`
	Offset      []float32 `yaml:"offset"`
	Up          []float32 `yaml:"up"`
	JointWeight *float32  `yaml:"joint_weight"`

	Pelvis      string      `yaml:"pelvis"`
	Legs        []LegConfig `yaml:"legs"`
	RayHeight   *float32    `yaml:"ray_height"`
	FootHeight  float32     `yaml:"foot_height"`
	AlignAnkles bool        `yaml:"align_ankles"`
}

type LegConfig struct {
	Hip          string    `yaml:"hip"`
	Knee         string    `yaml:"knee"`
	Ankle        string    `yaml:"ankle"`
	KneeAxis     []float32 `yaml:"knee_axis"`
	Pole         []float32 `yaml:"pole"`
	Soften       *float32  `yaml:"soften"`
	AnkleUp      []float32 `yaml:"ankle_up"`
	AnkleForward []float32 `yaml:"ankle_forward"`
}

// LoadConfig parses a YAML animator config. Unknown fields are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse animator config")
	}
	return cfg, nil
}

func LoadConfigFile(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open animator config")
	}
	defer file.Close()
	return LoadConfig(file)
}

// Build resolves cfg against the assets and returns a ready animator.
// Blend tree errors fail the build. Solvers that do not resolve or
// validate are logged and skipped.
func Build(cfg *Config, assets *AssetServer, skeletonName string, logger Logger, opts ...AnimatorOption) (*Animator, error) {
	s, ok := assets.SkeletonByName(skeletonName)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAsset, "skeleton %q", skeletonName)
	}
	root, err := buildNode(&cfg.Tree, s, assets)
	if err != nil {
		return nil, err
	}
	tree, err := blend.NewTree(s, root)
	if err != nil {
		return nil, errors.Wrapf(err, "animator %q", cfg.Name)
	}

	opts = append([]AnimatorOption{WithLogger(logger), WithName(cfg.Name)}, opts...)
	a, err := NewAnimator(s, tree, opts...)
	if err != nil {
		return nil, err
	}

	for i := range cfg.Solvers {
		sc := &cfg.Solvers[i]
		solver, err := buildSolver(sc, s, a.raycast)
		if err != nil {
			a.logger.Errorf("skipping solver %q: %v", sc.Name, err)
			continue
		}
		a.AddSolver(sc.Name, solver)
	}
	return a, nil
}

func buildNode(nc *NodeConfig, s *skeleton.Skeleton, assets *AssetServer) (*blend.Node, error) {
	weight := valueOr(nc.Weight, 1)

	var n *blend.Node
	switch nc.Kind {
	case "clip":
		_, anim, ok := assets.AnimationByName(nc.Clip)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownAsset, "node %q: animation %q", nc.Name, nc.Clip)
		}
		n = blend.NewClip(nc.Name, anim, weight)
		n.Playback.Loop = valueOr(nc.Loop, true)
	case "override", "additive":
		children := make([]*blend.Node, len(nc.Children))
		for i := range nc.Children {
			child, err := buildNode(&nc.Children[i], s, assets)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		if nc.Kind == "override" {
			n = blend.NewOverride(nc.Name, weight, children...)
		} else {
			if len(children) == 0 {
				return nil, errors.Wrapf(blend.ErrNoChildren, "node %q", nc.Name)
			}
			n = blend.NewAdditive(nc.Name, weight, children[0], children[1:]...)
		}
	default:
		return nil, errors.Wrapf(ErrConfigKind, "node %q: %q", nc.Name, nc.Kind)
	}

	n.Speed = valueOr(nc.Speed, 1)

	if nc.Mask != nil {
		mask := blend.NewMask(s, nc.Mask.Default)
		for _, j := range nc.Mask.Joints {
			if err := mask.SetByName(j.Name, j.Weight, j.Children); err != nil {
				return nil, errors.Wrapf(err, "node %q mask", nc.Name)
			}
		}
		n.Mask = mask
	}
	return n, nil
}

// resolver collects the first failure of a series of name and vector
// lookups.
type resolver struct {
	s   *skeleton.Skeleton
	err error
}

func (r *resolver) joint(name string) int {
	if r.err != nil {
		return skeleton.NoParent
	}
	j := r.s.FindJoint(name)
	if j < 0 {
		r.err = errors.Wrapf(ErrConfigJoint, "%q", name)
	}
	return j
}

func (r *resolver) vec3(v []float32, def mgl32.Vec3) mgl32.Vec3 {
	switch {
	case r.err != nil:
		return def
	case len(v) == 0:
		return def
	case len(v) != 3:
		r.err = errors.Wrapf(ErrConfigVector, "got %d", len(v))
		return def
	}
	return mgl32.Vec3{v[0], v[1], v[2]}
}

func buildSolver(sc *SolverConfig, s *skeleton.Skeleton, raycast ik.RaycastFunc) (ik.Solver, error) {
	r := &resolver{s: s}
	weight := valueOr(sc.Weight, 1)

	var solver ik.Solver
	switch sc.Kind {
	case "two_bone":
		solver = &ik.TwoBoneSolver{
			Start:   r.joint(sc.Start),
			Mid:     r.joint(sc.Mid),
			End:     r.joint(sc.End),
			Target:  r.vec3(sc.Target, mgl32.Vec3{}),
			Pole:    r.vec3(sc.Pole, mgl32.Vec3{0, 1, 0}),
			MidAxis: r.vec3(sc.MidAxis, mgl32.Vec3{0, 0, 1}),
			Twist:   sc.Twist,
			Soften:  valueOr(sc.Soften, 1),
			Weight:  weight,
		}
	case "aim_chain":
		joints := make([]int, len(sc.Joints))
		for i, name := range sc.Joints {
			joints[i] = r.joint(name)
		}
		solver = &ik.AimChainSolver{
			Joints:      joints,
			Target:      r.vec3(sc.Target, mgl32.Vec3{}),
			Forward:     r.vec3(sc.Forward, mgl32.Vec3{1, 0, 0}),
			Offset:      r.vec3(sc.Offset, mgl32.Vec3{}),
			Up:          r.vec3(sc.Up, mgl32.Vec3{0, 1, 0}),
			Pole:        r.vec3(sc.Pole, mgl32.Vec3{0, 1, 0}),
			Twist:       sc.Twist,
			JointWeight: valueOr(sc.JointWeight, 0.5),
			Weight:      weight,
		}
	case "floor":
		pelvis := skeleton.NoParent
		if sc.Pelvis != "" {
			pelvis = r.joint(sc.Pelvis)
		}
		legs := make([]ik.Leg, len(sc.Legs))
		for i, lc := range sc.Legs {
			legs[i] = ik.Leg{
				Hip:          r.joint(lc.Hip),
				Knee:         r.joint(lc.Knee),
				Ankle:        r.joint(lc.Ankle),
				KneeAxis:     r.vec3(lc.KneeAxis, mgl32.Vec3{1, 0, 0}),
				Pole:         r.vec3(lc.Pole, mgl32.Vec3{}),
				Soften:       valueOr(lc.Soften, 1),
				AnkleUp:      r.vec3(lc.AnkleUp, mgl32.Vec3{0, 1, 0}),
				AnkleForward: r.vec3(lc.AnkleForward, mgl32.Vec3{0, 0, 1}),
			}
		}
		solver = &ik.FloorSolver{
			Legs:        legs,
			Pelvis:      pelvis,
			Up:          r.vec3(sc.Up, mgl32.Vec3{0, 1, 0}),
			Raycast:     raycast,
			RayHeight:   valueOr(sc.RayHeight, 1),
			FootHeight:  sc.FootHeight,
			AlignAnkles: sc.AlignAnkles,
			Weight:      weight,
		}
	default:
		return nil, errors.Wrapf(ErrConfigKind, "%q", sc.Kind)
	}

	if r.err != nil {
		return nil, r.err
	}
	return solver, nil
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
