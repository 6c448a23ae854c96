package skelanim

import (
	"io"
	"os"
	"sync"

	"github.com/gekko3d/skelanim/animrt/rt/animation"
	"github.com/gekko3d/skelanim/animrt/rt/skeleton"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type AssetId string

var ErrUnknownAsset = errors.New("skelanim: unknown asset")

type SkeletonAsset struct {
	name     string
	skeleton *skeleton.Skeleton
}

type AnimationAsset struct {
	version   uint
	animation *animation.Animation
}

// AssetServer owns the skeletons and animations shared by animators. It is
// safe for concurrent use; the assets themselves are immutable.
type AssetServer struct {
	mu         sync.RWMutex
	skeletons  map[AssetId]SkeletonAsset
	animations map[AssetId]AnimationAsset
	byName     map[string]AssetId
}

func NewAssetServer() *AssetServer {
	return &AssetServer{
		skeletons:  make(map[AssetId]SkeletonAsset),
		animations: make(map[AssetId]AnimationAsset),
		byName:     make(map[string]AssetId),
	}
}

func (server *AssetServer) AddSkeleton(name string, s *skeleton.Skeleton) AssetId {
	id := makeAssetId()

	server.mu.Lock()
	server.skeletons[id] = SkeletonAsset{name: name, skeleton: s}
	server.mu.Unlock()

	return id
}

func (server *AssetServer) Skeleton(id AssetId) (*skeleton.Skeleton, bool) {
	server.mu.RLock()
	defer server.mu.RUnlock()
	asset, ok := server.skeletons[id]
	return asset.skeleton, ok
}

// SkeletonByName returns the first skeleton added under name.
func (server *AssetServer) SkeletonByName(name string) (*skeleton.Skeleton, bool) {
	server.mu.RLock()
	defer server.mu.RUnlock()
	for _, asset := range server.skeletons {
		if asset.name == name {
			return asset.skeleton, true
		}
	}
	return nil, false
}

// AddAnimation registers anim under its name. A later animation with the
// same name shadows it in AnimationByName.
func (server *AssetServer) AddAnimation(anim *animation.Animation) AssetId {
	id := makeAssetId()

	server.mu.Lock()
	server.animations[id] = AnimationAsset{version: 0, animation: anim}
	server.byName[anim.Name()] = id
	server.mu.Unlock()

	return id
}

// BuildAnimation compresses raw and registers the result.
func (server *AssetServer) BuildAnimation(raw *animation.RawAnimation) (AssetId, error) {
	anim, err := animation.Builder{}.Build(raw)
	if err != nil {
		return "", errors.Wrapf(err, "failed to build animation %q", raw.Name)
	}
	return server.AddAnimation(anim), nil
}

// LoadAnimation decodes a binary animation from r and registers it.
func (server *AssetServer) LoadAnimation(r io.Reader) (AssetId, error) {
	anim, err := animation.Read(r)
	if err != nil {
		return "", err
	}
	return server.AddAnimation(anim), nil
}

func (server *AssetServer) LoadAnimationFile(filename string) (AssetId, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open animation")
	}
	defer file.Close()

	id, err := server.LoadAnimation(file)
	if err != nil {
		return "", errors.Wrapf(err, "failed to load %s", filename)
	}
	return id, nil
}

func (server *AssetServer) Animation(id AssetId) (*animation.Animation, bool) {
	server.mu.RLock()
	defer server.mu.RUnlock()
	asset, ok := server.animations[id]
	return asset.animation, ok
}

func (server *AssetServer) AnimationByName(name string) (AssetId, *animation.Animation, bool) {
	server.mu.RLock()
	defer server.mu.RUnlock()
	id, ok := server.byName[name]
	if !ok {
		return "", nil, false
	}
	return id, server.animations[id].animation, true
}

// AnimationVersion counts the replacements of an animation.
func (server *AssetServer) AnimationVersion(id AssetId) uint {
	server.mu.RLock()
	defer server.mu.RUnlock()
	return server.animations[id].version
}

// ReplaceAnimation swaps the animation stored under id and returns the
// previous one. Animators still playing it must be told with
// Animator.ReplaceAnimation so that their sampling contexts are reset.
func (server *AssetServer) ReplaceAnimation(id AssetId, anim *animation.Animation) (*animation.Animation, error) {
	server.mu.Lock()
	defer server.mu.Unlock()

	asset, ok := server.animations[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAsset, "animation %s", id)
	}
	if prev := asset.animation.Name(); prev != anim.Name() && server.byName[prev] == id {
		delete(server.byName, prev)
	}
	server.animations[id] = AnimationAsset{version: asset.version + 1, animation: anim}
	server.byName[anim.Name()] = id
	return asset.animation, nil
}

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}
