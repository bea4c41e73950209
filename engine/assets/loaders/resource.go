package loaders

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeShader
	ResourceTypeTexture
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeTexture:
		return "texture"
	}
	return "none"
}

type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	// []byte for shaders, *TextureData for textures.
	Data interface{}
}

type Loader interface {
	Load(path string) (*Resource, error)
}
